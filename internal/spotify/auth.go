package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/songlink/linkreader/internal/domain"
)

const (
	authURL  = "https://accounts.spotify.com/authorize"
	tokenURL = "https://accounts.spotify.com/api/token"

	// DefaultRedirectURL must be registered on the Spotify application
	DefaultRedirectURL = "http://localhost:8888/callback"

	authTimeout = 5 * time.Minute
)

// Scopes needed to read and edit the bot's private playlists
var Scopes = []string{"playlist-modify-private", "playlist-read-private"}

// OAuthConfig returns the authorization-code configuration for a Spotify application
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthFlow runs the browser authorization-code flow for the bot account
type AuthFlow struct {
	config     *oauth2.Config
	apiBaseURL string
	out        io.Writer
	logger     *slog.Logger
}

// NewAuthFlow creates an authorization flow. Instructions are written to out.
func NewAuthFlow(config *oauth2.Config, out io.Writer, logger *slog.Logger) *AuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlow{
		config:     config,
		apiBaseURL: DefaultBaseURL,
		out:        out,
		logger:     logger,
	}
}

type callbackResult struct {
	code string
	err  error
}

// Run prints the authorize URL, waits for Spotify to redirect back to the
// local callback, exchanges the code and looks up the account ID.
func (f *AuthFlow) Run(ctx context.Context) (*domain.Credentials, error) {
	redirect, err := url.Parse(f.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.Handle(redirect.Path, callbackHandler(state, results))

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("auth callback server failed", "error", err)
		}
	}()
	defer server.Close()

	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(f.out, "  Open this URL and approve access:")
	fmt.Fprintf(f.out, "  %s\n", f.config.AuthCodeURL(state))
	fmt.Fprintln(f.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, "Waiting for authorization...")

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var code string
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization not completed: %w", ctx.Err())
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	}

	token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	client := NewClient(f.apiBaseURL, f.config.Client(ctx, token), "", f.logger)
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	f.logger.Info("spotify account authorized", "userID", user.ID)
	fmt.Fprintf(f.out, "\nAuthorized as %s\n", displayName(user))

	return CredentialsFromToken(token, user.ID), nil
}

// callbackHandler receives the redirect and forwards the code once
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	var once sync.Once
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var res callbackResult
		switch {
		case query.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case query.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", query.Get("error"))
			http.Error(w, "Authorization denied. You can close this window.", http.StatusForbidden)
		case query.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		default:
			res.code = query.Get("code")
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
		}

		once.Do(func() { results <- res })
	})
}

func displayName(u *domain.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// CredentialsFromToken converts an oauth2 token into storable credentials
func CredentialsFromToken(token *oauth2.Token, userID string) *domain.Credentials {
	return &domain.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		UserID:       userID,
	}
}

// tokenFromCredentials is the inverse of CredentialsFromToken
func tokenFromCredentials(creds *domain.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.Expiry,
	}
}

// persistingTokenSource saves every newly minted token so a restart does not
// need a fresh authorization. Spotify may rotate the refresh token.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  domain.CredentialStore
	userID string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	if err := s.store.SaveCredentials(CredentialsFromToken(token, s.userID)); err != nil {
		// The token is still usable for this run
		s.logger.Error("failed to persist refreshed token", "error", err)
	} else {
		s.logger.Debug("spotify token refreshed", "expiry", token.Expiry)
	}
	return token, nil
}

// NewHTTPClient returns an HTTP client authorized with the stored credentials.
// Access tokens are refreshed automatically and written back to store.
func NewHTTPClient(ctx context.Context, config *oauth2.Config, store domain.CredentialStore, logger *slog.Logger) (*http.Client, *domain.Credentials, error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds, ok := store.LoadCredentials()
	if !ok || !creds.HasRefreshToken() {
		return nil, nil, domain.ErrNoRefreshToken
	}

	token := tokenFromCredentials(creds)
	source := &persistingTokenSource{
		base:   config.TokenSource(ctx, token),
		store:  store,
		userID: creds.UserID,
		logger: logger,
		last:   token.AccessToken,
	}

	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))
	client.Timeout = defaultTimeout
	return client, creds, nil
}

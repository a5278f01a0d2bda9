package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/songlink/linkreader/internal/domain"
	"github.com/songlink/linkreader/internal/logging"
)

type fakeCredentialStore struct {
	mu      sync.Mutex
	creds   *domain.Credentials
	saves   int
	saveErr error
}

func (s *fakeCredentialStore) LoadCredentials() (*domain.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.creds != nil
}

func (s *fakeCredentialStore) SaveCredentials(creds *domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.creds = creds
	s.saves++
	return nil
}

// sequenceTokenSource hands out tokens in order, repeating the last one
type sequenceTokenSource struct {
	tokens []*oauth2.Token
	i      int
}

func (s *sequenceTokenSource) Token() (*oauth2.Token, error) {
	tok := s.tokens[s.i]
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return tok, nil
}

func TestOAuthConfig(t *testing.T) {
	cfg := OAuthConfig("id", "secret", "")
	assert.Equal(t, DefaultRedirectURL, cfg.RedirectURL)
	assert.Equal(t, Scopes, cfg.Scopes)

	u, err := url.Parse(cfg.AuthCodeURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.spotify.com", u.Host)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "playlist-modify-private playlist-read-private", u.Query().Get("scope"))
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		status   int
		wantCode string
		wantErr  bool
		wantSent bool
	}{
		{name: "code", query: "state=s&code=abc", status: http.StatusOK, wantCode: "abc", wantSent: true},
		{name: "state mismatch", query: "state=other&code=abc", status: http.StatusBadRequest},
		{name: "missing code", query: "state=s", status: http.StatusBadRequest},
		{name: "denied", query: "state=s&error=access_denied", status: http.StatusForbidden, wantErr: true, wantSent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(chan callbackResult, 1)
			h := callbackHandler("s", results)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code)

			select {
			case res := <-results:
				require.True(t, tt.wantSent)
				assert.Equal(t, tt.wantCode, res.code)
				assert.Equal(t, tt.wantErr, res.err != nil)
			default:
				assert.False(t, tt.wantSent)
			}
		})
	}
}

func TestCallbackHandlerSendsOnce(t *testing.T) {
	results := make(chan callbackResult, 1)
	h := callbackHandler("s", results)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s&code=abc", nil))
	}
	assert.Len(t, results, 1)
}

func TestPersistingTokenSourceSavesRotatedTokens(t *testing.T) {
	store := &fakeCredentialStore{}
	src := &persistingTokenSource{
		base: &sequenceTokenSource{tokens: []*oauth2.Token{
			{AccessToken: "a1", RefreshToken: "r1"},
			{AccessToken: "a1", RefreshToken: "r1"},
			{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Unix(100, 0)},
		}},
		store:  store,
		userID: "bot-user",
		logger: logging.NullLogger(),
		last:   "a1",
	}

	for i := 0; i < 3; i++ {
		_, err := src.Token()
		require.NoError(t, err)
	}

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, &domain.Credentials{
		AccessToken:  "a2",
		RefreshToken: "r2",
		Expiry:       time.Unix(100, 0),
		UserID:       "bot-user",
	}, store.creds)
}

func TestPersistingTokenSourceSurvivesSaveFailure(t *testing.T) {
	store := &fakeCredentialStore{saveErr: errors.New("disk full")}
	src := &persistingTokenSource{
		base:   &sequenceTokenSource{tokens: []*oauth2.Token{{AccessToken: "new"}}},
		store:  store,
		logger: logging.NullLogger(),
	}

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
}

func TestNewHTTPClientRequiresRefreshToken(t *testing.T) {
	cfg := OAuthConfig("id", "secret", "")

	_, _, err := NewHTTPClient(context.Background(), cfg, &fakeCredentialStore{}, logging.NullLogger())
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)

	store := &fakeCredentialStore{creds: &domain.Credentials{AccessToken: "a"}}
	_, _, err = NewHTTPClient(context.Background(), cfg, store, logging.NullLogger())
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)
}

func TestNewHTTPClientAttachesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer live", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id": "bot-user"}`))
	}))
	defer srv.Close()

	store := &fakeCredentialStore{creds: &domain.Credentials{
		AccessToken:  "live",
		RefreshToken: "r",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
		UserID:       "bot-user",
	}}

	httpClient, creds, err := NewHTTPClient(context.Background(), OAuthConfig("id", "secret", ""), store, logging.NullLogger())
	require.NoError(t, err)
	assert.Equal(t, "bot-user", creds.UserID)

	user, err := NewClient(srv.URL, httpClient, creds.UserID, logging.NullLogger()).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot-user", user.ID)
	assert.Zero(t, store.saves)
}

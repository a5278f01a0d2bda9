package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/songlink/linkreader/internal/domain"
)

// DefaultBaseURL is the Spotify Web API root
const DefaultBaseURL = "https://api.spotify.com/v1"

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond

	// requestsPerSecond keeps the bot well under the rolling API quota
	requestsPerSecond = 10
	requestBurst      = 5
)

// Client implements domain.PlaylistRepository against the Spotify Web API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	userID string
}

// NewClient creates a Web API client. httpClient must attach credentials,
// normally the client returned by NewHTTPClient. userID is the account that
// owns created playlists; when empty it is looked up on first use.
func NewClient(baseURL string, httpClient *http.Client, userID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		retryDelay: baseRetryDelay,
		logger:     logger,
	}
}

// doRequest performs a request against the Web API and returns the body of a 2xx response.
// 5xx and 429 responses are retried with exponential backoff, honouring Retry-After.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL = reqURL + "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			if wait > delay {
				delay = wait
			}
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "path", path)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.logger.Debug("spotify request", "method", method, "path", path, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			var retrieveErr *oauth2.RetrieveError
			if errors.As(err, &retrieveErr) {
				c.logger.Error("spotify token refresh failed", "error", err)
				return nil, fmt.Errorf("%w: %s", domain.ErrAuthFailed, retrieveErr.ErrorCode)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Error("spotify request failed", "error", err)
			return nil, domain.ErrServerOffline
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil

		case resp.StatusCode == http.StatusUnauthorized:
			return nil, domain.ErrAuthFailed

		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", path, domain.ErrPlaylistNotFound)

		case resp.StatusCode == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header.Get("Retry-After"))
			lastErr = domain.ErrRateLimited
			c.logger.Warn("spotify rate limit, will retry",
				"retryAfter", wait,
				"attempt", attempt,
				"maxRetries", maxRetries,
				"path", path,
			)
			continue

		case resp.StatusCode >= 500:
			wait = 0
			lastErr = fmt.Errorf("server error: %d - %s", resp.StatusCode, apiMessage(respBody))
			c.logger.Warn("spotify server error, will retry",
				"status", resp.StatusCode,
				"attempt", attempt,
				"maxRetries", maxRetries,
				"path", path,
			)
			continue
		}

		c.logger.Error("spotify request error", "status", resp.StatusCode, "body", string(respBody))
		return nil, fmt.Errorf("unexpected status code: %d - %s", resp.StatusCode, apiMessage(respBody))
	}

	c.logger.Error("spotify request failed after retries", "error", lastErr, "path", path)
	return nil, lastErr
}

// retryAfter parses a Retry-After header given in seconds
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// apiMessage extracts the message from an error envelope, falling back to the raw body
func apiMessage(body []byte) string {
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(body)
}

func playlistTracksPath(playlistID string) string {
	return "/playlists/" + url.PathEscape(playlistID) + "/tracks"
}

// GetPlaylistTracks returns one page of track IDs from a playlist
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string, offset, limit int) ([]string, bool, error) {
	query := url.Values{}
	query.Set("fields", "items(track.id),next")
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.doRequest(ctx, http.MethodGet, playlistTracksPath(playlistID), query, nil)
	if err != nil {
		return nil, false, err
	}

	var resp playlistTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		// Local files and removed tracks have no ID
		if item.Track == nil || item.Track.ID == "" {
			continue
		}
		ids = append(ids, item.Track.ID)
	}
	more := resp.Next != nil && *resp.Next != ""
	return ids, more, nil
}

// AddTracks appends track URIs to a playlist
func (c *Client) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) > domain.MaxTracksPerRequest {
		return fmt.Errorf("cannot add %d tracks in one request, limit is %d", len(uris), domain.MaxTracksPerRequest)
	}

	body, err := c.doRequest(ctx, http.MethodPost, playlistTracksPath(playlistID), nil, addTracksRequest{URIs: uris})
	if err != nil {
		return err
	}

	var snap snapshotResponse
	if err := json.Unmarshal(body, &snap); err == nil {
		c.logger.Debug("tracks added", "playlistID", playlistID, "count", len(uris), "snapshot", snap.SnapshotID)
	}
	return nil
}

// RemoveTracks removes every occurrence of the given track URIs from a playlist
func (c *Client) RemoveTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) > domain.MaxTracksPerRequest {
		return fmt.Errorf("cannot remove %d tracks in one request, limit is %d", len(uris), domain.MaxTracksPerRequest)
	}

	tracks := make([]trackRef, len(uris))
	for i, uri := range uris {
		tracks[i] = trackRef{URI: uri}
	}

	_, err := c.doRequest(ctx, http.MethodDelete, playlistTracksPath(playlistID), nil, removeTracksRequest{Tracks: tracks})
	return err
}

// CreatePlaylist creates a private playlist owned by the bot account
func (c *Client) CreatePlaylist(ctx context.Context, name string) (*domain.Playlist, error) {
	owner, err := c.ownerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up playlist owner: %w", err)
	}

	path := "/users/" + url.PathEscape(owner) + "/playlists"
	body, err := c.doRequest(ctx, http.MethodPost, path, nil, createPlaylistRequest{Name: name, Public: false})
	if err != nil {
		return nil, err
	}

	var resp playlistResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Info("playlist created", "playlistID", resp.ID, "name", resp.Name)
	return &domain.Playlist{
		ID:      resp.ID,
		Name:    resp.Name,
		OwnerID: resp.Owner.ID,
		Public:  resp.Public,
	}, nil
}

// CurrentUser returns the account the client is authorized as
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &domain.User{ID: resp.ID, DisplayName: resp.DisplayName}, nil
}

// UserID returns the owning account ID, empty until known
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) ownerID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	c.userID = user.ID
	return c.userID, nil
}

package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tunez/scrobbled/internal/scrobble"
)

const (
	apiURL  = "https://ws.audioscrobbler.com/2.0/"
	authURL = "https://www.last.fm/api/auth/"
)

// Last.fm error codes that mean the credentials themselves are bad.
const (
	errCodeInvalidAPIKey     = 10
	errCodeInvalidSessionKey = 9
	errCodeInvalidSignature  = 13
	errCodeRateLimited       = 29
)

// Config holds Last.fm client configuration.
type Config struct {
	APIKey     string
	APISecret  string
	SessionKey string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	Timeout time.Duration
}

// Client submits scrobbles to Last.fm and runs the desktop auth handshake.
type Client struct {
	apiKey     string
	apiSecret  string
	sessionKey string
	baseURL    string
	client     *http.Client
}

// Session is the result of a completed auth handshake.
type Session struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// New creates a new Last.fm client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = apiURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		sessionKey: cfg.SessionKey,
		baseURL:    base,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) IsEnabled() bool {
	return c.apiKey != "" && c.apiSecret != "" && c.sessionKey != ""
}

// Submit scrobbles artist/title played at ts. It returns nil only when the
// service reports at least one accepted scrobble.
func (c *Client) Submit(ctx context.Context, artist, title string, ts time.Time) error {
	if !c.IsEnabled() {
		return scrobble.ErrNotConfigured
	}

	params := map[string]string{
		"method":    "track.scrobble",
		"artist":    artist,
		"track":     title,
		"timestamp": strconv.FormatInt(ts.Unix(), 10),
		"api_key":   c.apiKey,
		"sk":        c.sessionKey,
	}

	var result scrobbleResponse
	if err := c.signedPost(ctx, params, &result); err != nil {
		return err
	}
	if result.Scrobbles.Attr.Accepted <= 0 {
		reason := "ignored"
		if msg := result.ignoredMessage(); msg != "" {
			reason = msg
		}
		return fmt.Errorf("%w: lastfm accepted 0 scrobbles (%s)", scrobble.ErrRejected, reason)
	}
	return nil
}

// UpdateNowPlaying reports the track that just started. It does not count as a play.
func (c *Client) UpdateNowPlaying(ctx context.Context, artist, title, album string, duration int) error {
	if !c.IsEnabled() {
		return scrobble.ErrNotConfigured
	}

	params := map[string]string{
		"method":  "track.updateNowPlaying",
		"artist":  artist,
		"track":   title,
		"api_key": c.apiKey,
		"sk":      c.sessionKey,
	}
	if album != "" {
		params["album"] = album
	}
	if duration > 0 {
		params["duration"] = strconv.Itoa(duration)
	}
	return c.signedPost(ctx, params, nil)
}

// GetToken requests an unauthorized request token for the desktop auth flow.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	params := map[string]string{
		"method":  "auth.getToken",
		"api_key": c.apiKey,
	}
	if err := c.signedPost(ctx, params, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", errors.New("lastfm: empty token in response")
	}
	return result.Token, nil
}

// AuthURL is the page where the user grants access for token.
func (c *Client) AuthURL(token string) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("token", token)
	return authURL + "?" + q.Encode()
}

// GetSession exchanges an authorized token for a session key.
func (c *Client) GetSession(ctx context.Context, token string) (Session, error) {
	var result struct {
		Session Session `json:"session"`
	}
	params := map[string]string{
		"method":  "auth.getSession",
		"token":   token,
		"api_key": c.apiKey,
	}
	if err := c.signedPost(ctx, params, &result); err != nil {
		return Session{}, err
	}
	if result.Session.Key == "" {
		return Session{}, errors.New("lastfm: empty session key in response")
	}
	return result.Session, nil
}

type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func (c *Client) signedPost(ctx context.Context, params map[string]string, out any) error {
	params["api_sig"] = c.sign(params)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", scrobble.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", scrobble.ErrUnavailable, err)
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Error != 0 {
		return classify(apiErr)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return scrobble.ErrUnauthorized
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return scrobble.ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: lastfm error: %s", scrobble.ErrUnavailable, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: lastfm error: %s", scrobble.ErrRejected, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", scrobble.ErrRejected, err)
	}
	return nil
}

func classify(e apiError) error {
	switch e.Error {
	case errCodeInvalidAPIKey, errCodeInvalidSessionKey, errCodeInvalidSignature:
		return fmt.Errorf("%w: lastfm error %d: %s", scrobble.ErrUnauthorized, e.Error, e.Message)
	case errCodeRateLimited:
		return fmt.Errorf("%w: lastfm error %d: %s", scrobble.ErrRateLimited, e.Error, e.Message)
	case 11, 16:
		// service offline / temporary error
		return fmt.Errorf("%w: lastfm error %d: %s", scrobble.ErrUnavailable, e.Error, e.Message)
	default:
		return fmt.Errorf("%w: lastfm error %d: %s", scrobble.ErrRejected, e.Error, e.Message)
	}
}

func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "format" && k != "callback" && k != "api_sig" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sig strings.Builder
	for _, k := range keys {
		sig.WriteString(k)
		sig.WriteString(params[k])
	}
	sig.WriteString(c.apiSecret)

	hash := md5.Sum([]byte(sig.String()))
	return hex.EncodeToString(hash[:])
}

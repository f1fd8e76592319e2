// Package resolver implements the client for the remote track-resolution service.
//
// The service turns a submitted URL into playable stream metadata, or a free
// text query into ranked candidates. The remote side is authoritative on URL
// validity; no validation beyond non-emptiness happens locally.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tannoy-player/tannoy/auth"
	"github.com/tannoy-player/tannoy/constant"
	"github.com/tannoy-player/tannoy/key"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/network"
)

// Reason is the machine-readable cause of a resolution failure.
type Reason string

const (
	ReasonTimeout         Reason = "timeout"
	ReasonUpstream        Reason = "upstream-error"
	ReasonInvalidResponse Reason = "invalid-response"
)

// Error is the typed failure surfaced by every resolver operation.
// AuthSuspected passes through the upstream hint that authentication material
// (cookies, tokens) may be invalid or expired; it drives the user-facing
// remediation prompt and is never diagnosed locally.
type Error struct {
	Reason        Reason
	AuthSuspected bool
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("resolution failed (%s): %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("resolution failed (%s)", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Track is the playable metadata returned for a single resolved URL.
type Track struct {
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	AudioURL  string  `json:"audioUrl"`
	Duration  float64 `json:"duration"`
	Source    string  `json:"source"`
}

// Candidate is one ranked search result. Same metadata shape as Track plus
// the identifier of the providing source.
type Candidate struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
}

// Client talks to the resolution service over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
	cache   *searchCache
}

// New constructs a Client from the global configuration.
func New() *Client {
	return &Client{
		baseURL: viper.GetString(key.ResolverURL),
		httpc:   network.Client,
		timeout: time.Duration(viper.GetInt(key.ResolverTimeoutSec)) * time.Second,
		cache: newSearchCache(
			time.Duration(viper.GetInt(key.ResolverCacheTTLMin))*time.Minute,
			viper.GetInt(key.ResolverCacheCapacity),
		),
	}
}

// Resolve turns a submitted URL into playable track metadata.
func (c *Client) Resolve(ctx context.Context, url string) (*Track, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &Error{Reason: ReasonInvalidResponse, cause: errors.New("empty url")}
	}

	var track Track
	if err := c.post(ctx, map[string]string{"url": url}, &track); err != nil {
		return nil, err
	}
	if track.AudioURL == "" {
		return nil, &Error{Reason: ReasonInvalidResponse, cause: errors.New("response carries no audio url")}
	}
	if track.Source == "" {
		track.Source = url
	}
	return &track, nil
}

// Search returns up to limit ranked candidates for a free-text query.
// Repeated identical queries inside the cache validity window are served
// locally without a remote call.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = viper.GetInt(key.ResolverSearchLimit)
	}

	if cached, ok := c.cache.get(query); ok {
		return capCandidates(cached, limit), nil
	}

	var payload struct {
		Results []Candidate `json:"results"`
	}
	if err := c.post(ctx, map[string]any{"query": query, "limit": limit}, &payload); err != nil {
		return nil, err
	}

	c.cache.put(query, payload.Results)
	return capCandidates(payload.Results, limit), nil
}

// capCandidates truncates the remote ranking without re-ranking locally.
func capCandidates(candidates []Candidate, limit int) []Candidate {
	if len(candidates) > limit {
		return candidates[:limit]
	}
	return candidates
}

// post sends one JSON request to the service and decodes the response into out.
func (c *Client) post(ctx context.Context, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded, err := json.Marshal(body)
	if err != nil {
		return &Error{Reason: ReasonInvalidResponse, cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return &Error{Reason: ReasonInvalidResponse, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constant.UserAgent)

	// Forward the stored credential when one exists; the service decides
	// whether it is still valid.
	if token, err := auth.GetToken(); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Timeouts and connection-level failures historically correlate
		// with expired upstream credentials, so the hint is set.
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return &Error{Reason: ReasonTimeout, AuthSuspected: true, cause: err}
		}
		return &Error{Reason: ReasonUpstream, AuthSuspected: true, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var remoteErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&remoteErr)
		log.Errorf("resolution service returned %d: %s", resp.StatusCode, remoteErr.Error)
		return &Error{
			Reason:        ReasonUpstream,
			AuthSuspected: resp.StatusCode >= 500,
			cause:         fmt.Errorf("status %d: %s", resp.StatusCode, remoteErr.Error),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Reason: ReasonInvalidResponse, cause: err}
	}
	return nil
}

// Package remote talks to the marketplace API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"fanplay/src/player"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 10 * time.Second

// Options configure a Client.
type Options struct {
	BaseURL string
	// Token is sent as bearer token when set.
	Token   string
	Timeout time.Duration
	// HTTPClient is the client requests are made with. The bearer token is
	// added on top of its transport.
	HTTPClient *http.Client
}

// Client is an HTTP client for the marketplace API.
//
// Requests are never retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ player.Resolver = (*Client)(nil)

// NewClient constructs a new marketplace client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}

	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		httpClient = &c
	}
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
	}, nil
}

func (c *Client) trackURL(trackID, endpoint string) string {
	return fmt.Sprintf("%s/tracks/%s/%s", c.baseURL, url.PathEscape(trackID), endpoint)
}

// statusError maps a response status to the error taxonomy of the player.
func statusError(res *http.Response) error {
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", player.ErrUnauthorized, res.StatusCode)
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", player.ErrNotFound, res.StatusCode)
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("%w: status %d", player.ErrNetwork, res.StatusCode)
	}
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, header http.Header, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", player.ErrNetwork, ctxErr)
		}
		return fmt.Errorf("%w: %v", player.ErrNetwork, err)
	}
	defer res.Body.Close()
	if err := statusError(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", player.ErrNetwork, err)
	}
	return nil
}

type streamResponse struct {
	URL    string `json:"url"`
	Access struct {
		Tier string `json:"tier"`
	} `json:"access"`
}

// Resolve implements player.Resolver.
func (c *Client) Resolve(ctx context.Context, trackID string) (player.Stream, error) {
	var res streamResponse
	if err := c.do(ctx, http.MethodGet, c.trackURL(trackID, "stream"), nil, nil, &res); err != nil {
		return player.Stream{}, fmt.Errorf("could not resolve stream of %q: %w", trackID, err)
	}
	if res.URL == "" {
		return player.Stream{}, fmt.Errorf("could not resolve stream of %q: %w: no url", trackID, player.ErrNetwork)
	}
	tier, err := player.ParseTier(res.Access.Tier)
	if err != nil {
		log.WithField("track", trackID).Warnf("Treating stream as free: %v", err)
		tier = player.TierFree
	}
	return player.Stream{URL: res.URL, Tier: tier}, nil
}

type logStreamRequest struct {
	Duration int `json:"duration"`
}

// LogStream reports a qualifying play-through. The play-through ID is sent
// as idempotency key.
func (c *Client) LogStream(ctx context.Context, trackID, playThrough string, played time.Duration) error {
	header := http.Header{}
	if playThrough != "" {
		header.Set("Idempotency-Key", playThrough)
	}
	body := logStreamRequest{Duration: int(played / time.Second)}
	if err := c.do(ctx, http.MethodPost, c.trackURL(trackID, "log_stream"), body, header, nil); err != nil {
		return fmt.Errorf("%w: %v", player.ErrLogging, err)
	}
	return nil
}

type likedResponse struct {
	IsLiked bool `json:"is_liked"`
}

// IsLiked reports whether the user likes the track.
func (c *Client) IsLiked(ctx context.Context, trackID string) (bool, error) {
	var res likedResponse
	if err := c.do(ctx, http.MethodGet, c.trackURL(trackID, "is_liked"), nil, nil, &res); err != nil {
		return false, err
	}
	return res.IsLiked, nil
}

// SetLiked likes or unlikes the track.
func (c *Client) SetLiked(ctx context.Context, trackID string, liked bool) error {
	method := http.MethodDelete
	if liked {
		method = http.MethodPost
	}
	return c.do(ctx, method, c.trackURL(trackID, "like"), nil, nil, nil)
}

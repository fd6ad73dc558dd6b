package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"portfolio-copilot/internal/domain"
	"portfolio-copilot/internal/extract"
)

const (
	DefaultEndpoint = "https://agent-prod.studio.lyzr.ai/v3/inference/chat/"
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 4096
)

// tokenPayload is the expected JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// invalidator is implemented by getters that cache values.
type invalidator interface {
	Invalidate(name string)
}

// Identity is the fixed caller identity sent with every chat request.
type Identity struct {
	UserID  string
	AgentID string
}

// HTTPStatusError captures non-2xx responses from the agent endpoint.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("agent: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client sends one message to the hosted agent chat endpoint and returns the
// reply text pulled out of the response.
type Client struct {
	endpoint   string
	httpClient *http.Client
	getter     Getter
	keyParam   string
	identity   Identity

	keyMu     sync.RWMutex
	apiKey    string
	staticKey bool
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimSpace(endpoint)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey pins the API key so no parameter lookup happens.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
		c.staticKey = c.apiKey != ""
	}
}

// NewClient creates a Client. The API key is read from the getter under
// keyParam on first use unless WithAPIKey is given; a failed read is retried
// on the next call.
func NewClient(ps Getter, keyParam string, identity Identity, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		getter:     ps,
		keyParam:   strings.TrimSpace(keyParam),
		identity: Identity{
			UserID:  strings.TrimSpace(identity.UserID),
			AgentID: strings.TrimSpace(identity.AgentID),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.identity.AgentID == "" {
		return nil, errors.New("agent: agent id must not be empty")
	}
	if c.identity.UserID == "" {
		return nil, errors.New("agent: user id must not be empty")
	}
	if c.endpoint == "" {
		return nil, errors.New("agent: endpoint must not be empty")
	}
	if !c.staticKey {
		if ps == nil {
			return nil, errors.New("agent: paramstore getter must not be nil")
		}
		if c.keyParam == "" {
			return nil, errors.New("agent: api key parameter must not be empty")
		}
	}
	return c, nil
}

// AgentID reports the agent this client talks to.
func (c *Client) AgentID() string {
	return c.identity.AgentID
}

// Send posts message for sessionID. Transport failures and non-2xx statuses
// are returned as errors; any 2xx body is turned into a string by the
// extractor, which may be empty.
func (c *Client) Send(ctx context.Context, sessionID, message string) (string, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(domain.AgentRequest{
		UserID:    c.identity.UserID,
		AgentID:   c.identity.AgentID,
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("agent: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("agent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream, text/plain")
	req.Header.Set("x-api-key", apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("agent: request failed: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			c.forgetAPIKey()
		}
		return "", &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.endpoint,
			Body:       string(buf),
		}
	}

	return extract.Response(res), nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.RLock()
	if c.apiKey != "" {
		key := c.apiKey
		c.keyMu.RUnlock()
		return key, nil
	}
	c.keyMu.RUnlock()

	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.keyParam)
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

// forgetAPIKey drops a rejected key so the next request reads it again,
// which picks up rotations without a cold start.
func (c *Client) forgetAPIKey() {
	if c.staticKey {
		return
	}
	c.keyMu.Lock()
	c.apiKey = ""
	c.keyMu.Unlock()
	if inv, ok := c.getter.(invalidator); ok {
		inv.Invalidate(c.keyParam)
	}
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("agent: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("agent: api key parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("agent: fetch api key from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("agent: unmarshal paramstore api key value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("agent: api key is empty")
	}
	return strings.TrimSpace(tp.Token), nil
}

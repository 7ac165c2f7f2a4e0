// Package api is the HTTP client for the chatbot backend.
package api

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

	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/version"
)

const (
	chatbotPrefix = "/api/chatbot"
	authPrefix    = "/api/auth"
)

// Client talks to the chatbot backend. The bearer token is looked up through
// tokenFunc on every request and is never interpreted or refreshed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokenFunc  func() string
	timeout    time.Duration
	log        *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. The client is not
// modified; a timeout set with WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a per-request timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, tokenFunc func() string, log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tokenFunc:  tokenFunc,
		log:        log.Sub("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ListSessions returns the authenticated user's sessions in backend order.
func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var sessions []domain.Session
	if err := c.do(ctx, http.MethodGet, chatbotPrefix+"/sessions", nil, &sessions, true); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// CreateSession creates a session, optionally named after firstMessage.
// The message itself is not sent to the agent.
func (c *Client) CreateSession(ctx context.Context, firstMessage string) (domain.Session, error) {
	var session domain.Session
	body := createSessionRequest{Message: strings.TrimSpace(firstMessage)}
	if err := c.do(ctx, http.MethodPost, chatbotPrefix+"/sessions", body, &session, true); err != nil {
		return domain.Session{}, err
	}
	if session.ID == "" {
		return domain.Session{}, fmt.Errorf("api: create session: response has no id")
	}
	return session, nil
}

// Messages returns the stored exchanges of a session, oldest first.
func (c *Client) Messages(ctx context.Context, id domain.SessionID) ([]domain.Exchange, error) {
	var exchanges []domain.Exchange
	path := chatbotPrefix + "/sessions/" + url.PathEscape(string(id)) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &exchanges, true); err != nil {
		return nil, err
	}
	return exchanges, nil
}

// SendMessage sends text to the agent within a session and returns its answer.
func (c *Client) SendMessage(ctx context.Context, id domain.SessionID, text string) (string, error) {
	var resp sendMessageResponse
	path := chatbotPrefix + "/sessions/" + url.PathEscape(string(id)) + "/message"
	if err := c.do(ctx, http.MethodPost, path, sendMessageRequest{Message: text}, &resp, true); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// ClearSessions deletes every session of the authenticated user.
func (c *Client) ClearSessions(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, chatbotPrefix+"/sessions", nil, nil, true)
}

// Register creates an account and returns its credential.
func (c *Client) Register(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, authPrefix+"/register", creds, &resp, false)
	return resp, err
}

// Login exchanges a username (or email) and password for a credential.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, authPrefix+"/login", creds, &resp, false)
	return resp, err
}

// Me returns the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.do(ctx, http.MethodGet, authPrefix+"/me", nil, &p, true)
	return p, err
}

// do performs a JSON request. When authed is set and no token is available
// it fails with ErrNoCredential without touching the network.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	var token string
	if authed {
		if c.tokenFunc != nil {
			token = c.tokenFunc()
		}
		if token == "" {
			return ErrNoCredential
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{StatusCode: resp.StatusCode}

	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		se.Message = er.Error
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}

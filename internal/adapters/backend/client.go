// Package backend provides the HTTP adapter for the external platform API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is used when no API URL is configured.
	DefaultBaseURL = "http://localhost:8000/api"

	// maxResponseBytes caps how much of a backend response we buffer.
	maxResponseBytes = 1 << 20

	pathLogin   = "/auth/login"
	pathGoogle  = "/auth/google"
	pathMe      = "/auth/me"
	pathRefresh = "/auth/refresh"
	pathLogout  = "/auth/logout"
)

// Config holds configuration for the backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// ErrorMessagePath is a JMESPath expression locating the message in error bodies.
	ErrorMessagePath string
	HTTPClient       *http.Client // Optional, defaults to a client with Timeout
	Logger           *slog.Logger
}

// Client implements ports.Backend over HTTP+JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	messages   *messageExtractor
	logger     *slog.Logger
}

var _ ports.Backend = (*Client)(nil)

// NewClient constructs a backend client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("backend base URL must be http(s): %q", base)
	}

	extractor, err := newMessageExtractor(cfg.ErrorMessagePath)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		messages:   extractor,
		logger:     logger.With("component", "backend_client"),
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login posts email/password to the login endpoint.
func (c *Client) Login(ctx context.Context, email, password string) (domainauth.TokenPair, error) {
	return c.obtainTokens(ctx, pathLogin, map[string]string{"email": email, "password": password})
}

// LoginWithToken posts an external provider token to the provider login endpoint.
func (c *Client) LoginWithToken(ctx context.Context, externalToken string) (domainauth.TokenPair, error) {
	return c.obtainTokens(ctx, pathGoogle, map[string]string{"token": externalToken})
}

// Refresh trades a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	return c.obtainTokens(ctx, pathRefresh, map[string]string{"refreshToken": refreshToken})
}

// Me fetches the current user and unwraps common response envelopes.
func (c *Client) Me(ctx context.Context, accessToken string) (domainauth.RawUser, error) {
	res, err := c.do(ctx, call{method: http.MethodGet, path: pathMe, bearer: accessToken})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, c.classify(res)
	}

	var raw domainauth.RawUser
	if decodeErr := json.Unmarshal(res.Body, &raw); decodeErr != nil {
		return nil, domainauth.UpstreamFailure(res.Status, "malformed user payload", decodeErr)
	}
	return domainauth.UnwrapUser(raw), nil
}

// Revoke asks the backend to end the session behind accessToken.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	res, err := c.do(ctx, call{method: http.MethodPost, path: pathLogout, bearer: accessToken})
	if err != nil {
		return err
	}
	if !res.OK() {
		return c.classify(res)
	}
	return nil
}

// Forward relays a request verbatim. Non-2xx answers are returned, not treated as errors;
// only transport failures produce an error.
func (c *Client) Forward(ctx context.Context, req ports.ForwardRequest) (*ports.ForwardResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	return c.do(ctx, call{method: method, path: req.Path, body: req.Body, header: req.Header})
}

func (c *Client) obtainTokens(ctx context.Context, path string, payload any) (domainauth.TokenPair, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("marshal request: %w", err)
	}

	res, err := c.do(ctx, call{method: http.MethodPost, path: path, body: body})
	if err != nil {
		return domainauth.TokenPair{}, err
	}
	if !res.OK() {
		return domainauth.TokenPair{}, c.classify(res)
	}

	pair, err := parseTokenPair(res.Body)
	if err != nil {
		return domainauth.TokenPair{}, domainauth.UpstreamFailure(res.Status, "malformed token payload", err)
	}
	return pair, nil
}

// classify maps a non-2xx backend answer onto the failure taxonomy.
// Any 4xx that mentions verification is treated as an unverified account.
func (c *Client) classify(res *ports.ForwardResponse) error {
	status := res.Status
	cause := fmt.Errorf("backend status %d: %s", status, res.Message)

	switch {
	case status >= 400 && status < 500 && mentionsVerification(res.Message):
		return domainauth.UnverifiedFailure(res.Message)
	case status == http.StatusBadRequest, status == http.StatusUnauthorized,
		status == http.StatusForbidden, status == http.StatusNotFound:
		return domainauth.InvalidFailure(cause)
	case status == http.StatusTooManyRequests:
		return domainauth.UpstreamFailure(status, "too many attempts, try again later", cause)
	default:
		return domainauth.UpstreamFailure(status, res.Message, cause)
	}
}

func mentionsVerification(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not verified") ||
		strings.Contains(msg, "unverified") ||
		strings.Contains(msg, "verify your email")
}

type call struct {
	method string
	path   string
	body   []byte
	bearer string
	header http.Header
}

func (c *Client) do(ctx context.Context, in call) (*ports.ForwardResponse, error) {
	var body io.Reader
	if in.body != nil {
		body = bytes.NewReader(in.body)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, c.url(in.path), body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	for k, vals := range in.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if in.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
	if in.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+in.bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.WarnContext(ctx, "backend request failed",
			"method", in.method, "path", in.path, "error", err)
		return nil, domainauth.UpstreamFailure(0, "backend unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domainauth.UpstreamFailure(resp.StatusCode, "read backend response", err)
	}

	c.logger.DebugContext(ctx, "backend request",
		"method", in.method,
		"path", in.path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	out := &ports.ForwardResponse{Status: resp.StatusCode, Body: data}
	if !out.OK() {
		out.Message = c.messages.extract(data, resp.StatusCode)
	}
	return out, nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// tokenEnvelope accepts the flat, data-wrapped and tokens-wrapped token shapes.
type tokenEnvelope struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	Data         *tokenEnvelope `json:"data"`
	Tokens       *tokenEnvelope `json:"tokens"`
}

func parseTokenPair(body []byte) (domainauth.TokenPair, error) {
	var env tokenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domainauth.TokenPair{}, err
	}
	for cur := &env; cur != nil; {
		if cur.AccessToken != "" || cur.RefreshToken != "" {
			return domainauth.TokenPair{AccessToken: cur.AccessToken, RefreshToken: cur.RefreshToken}, nil
		}
		switch {
		case cur.Data != nil:
			cur = cur.Data
		case cur.Tokens != nil:
			cur = cur.Tokens
		default:
			cur = nil
		}
	}
	return domainauth.TokenPair{}, nil
}

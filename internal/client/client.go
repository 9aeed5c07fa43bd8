// Package client is a typed HTTP client for the rental booking API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session Session
	Timeout time.Duration
	Logger  *logger.Logger

	now func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

// WithTimeout bounds every request, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		Session: session,
		Timeout: DefaultTimeout,
		Logger:  logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the server's response wrapper with Data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type authMode int

const (
	authRequired authMode = iota
	authOptional
)

// token returns the bearer token for the call. Required calls fail with
// unauthenticated before any network I/O when it is missing or expired.
func (c *Client) token(mode authMode) (string, error) {
	if c.Session == nil {
		if mode == authRequired {
			return "", models.NewError(models.KindUnauthenticated, "not logged in")
		}
		return "", nil
	}
	tok, err := c.Session.Token()
	if err != nil {
		if mode == authRequired {
			return "", models.WrapError(models.KindUnauthenticated, err, "session unavailable")
		}
		return "", nil
	}
	switch {
	case tok == "":
		if mode == authRequired {
			return "", models.NewError(models.KindUnauthenticated, "not logged in")
		}
	case auth.Expired(tok, c.now()):
		if mode == authRequired {
			return "", models.NewError(models.KindUnauthenticated, "session expired, please log in again")
		}
		return "", nil
	}
	return tok, nil
}

func (c *Client) do(ctx context.Context, method, path string, mode authMode, body, out interface{}) error {
	tok, err := c.token(mode)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return models.WrapError(models.KindInvalidRequest, err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return models.WrapError(models.KindInvalidRequest, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := c.now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Debug("CLIENT", fmt.Sprintf("%s %s failed: %v", method, path, err))
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(err)
	}
	c.Logger.Debug("CLIENT", fmt.Sprintf("%s %s -> %d in %s", method, path, resp.StatusCode, c.now().Sub(start)))

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp.StatusCode, env, decodeErr)
	}
	if decodeErr != nil {
		return models.WrapError(models.KindInternal, decodeErr, "malformed response from server")
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return models.WrapError(models.KindInternal, err, "malformed response payload")
	}
	return nil
}

// classifyTransport separates deadline failures from other transport errors.
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return models.WrapError(models.KindTimeout, err, "the server took too long to respond")
	}
	return models.WrapError(models.KindNetwork, err, "could not reach the server")
}

func responseError(status int, env envelope, decodeErr error) error {
	kind := kindForStatus(status)
	if decodeErr == nil && env.Code != "" {
		kind = models.ParseErrorKind(env.Code)
	}

	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" || decodeErr != nil {
		msg = http.StatusText(status)
	}
	return models.NewError(kind, msg)
}

func kindForStatus(status int) models.ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return models.KindUnauthenticated
	case http.StatusForbidden:
		return models.KindForbidden
	case http.StatusNotFound:
		return models.KindNotFound
	case http.StatusConflict:
		return models.KindConflict
	case http.StatusUnprocessableEntity:
		return models.KindUnavailable
	case http.StatusBadRequest:
		return models.KindInvalidRequest
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return models.KindTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return models.KindNetwork
	default:
		return models.KindInternal
	}
}

func pageQuery(page, limit int) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Package client talks to the storefront REST backend: auth, cart, catalog
// and orders. Every request except login and register carries the session's
// bearer token; a 401 drops the token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	loginPath    = "/api/auth/login"
	registerPath = "/api/auth/register"

	defaultTimeout = 15 * time.Second
)

// TokenSource hands out the current bearer token and forgets it when the
// backend answers 401.
type TokenSource interface {
	Token() string
	Invalidate()
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	cb      *gobreaker.CircuitBreaker
	log     logrus.FieldLogger
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	st := gobreaker.Settings{
		Name:        "StorefrontBackend",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		// a 4xx is the backend working as intended
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := StatusCode(err)
			return code >= 400 && code < 500
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		tokens:  opts.Tokens,
		cb:      gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, loginPath) || strings.HasPrefix(path, registerPath)
}

// do sends one JSON request. out may be nil; an empty body leaves it untouched.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.Wrapf(ErrNetwork, "%s %s: %v", method, path, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create request")
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.tokens != nil && !isAuthPath(path) {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	log := c.log.WithFields(logrus.Fields{
		"http.req.path":   path,
		"http.req.method": method,
		"http.req.id":     requestID,
	})
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		log.WithField("error", err).Warn("request failed")
		return pkgerrors.Wrapf(ErrNetwork, "%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return pkgerrors.Wrapf(ErrNetwork, "read response of %s %s: %v", method, path, err)
	}
	log.WithFields(logrus.Fields{
		"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
		"http.resp.status":  res.StatusCode,
		"http.resp.bytes":   len(payload),
	}).Debug("request complete")

	if res.StatusCode == http.StatusUnauthorized && !isAuthPath(path) {
		if c.tokens != nil {
			c.tokens.Invalidate()
		}
		return ErrUnauthorized
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Code: res.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return pkgerrors.Wrapf(err, "decode response of %s %s", method, path)
	}
	return nil
}

// errorMessage pulls {"message": ...} or {"error": ...} out of an error body,
// falling back to the raw text.
func errorMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// Package backend implements the chat core's collaborators (message log,
// uploads, room metadata) against the studyroom HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/tracing"
	"studyroom/internal/versioning"
	"studyroom/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// TokenSource hands out the bearer token for each call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client carries the plumbing shared by every endpoint: base URL, HTTP
// client, token source and logger.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	logger  *logrus.Logger
	breaker *circuitbreaker.CircuitBreaker
}

type ClientOption func(*Client)

// WithCircuitBreaker fails calls fast while the server keeps returning
// transport errors or 5xx responses.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// NewCircuitBreaker returns a breaker that only counts server-side failures
// against the backend. Client errors such as 400 or 404 never trip it.
func NewCircuitBreaker(logger *logrus.Logger, opts ...circuitbreaker.Option) *circuitbreaker.CircuitBreaker {
	opts = append([]circuitbreaker.Option{
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithFailurePredicate(isServerFailure),
	}, opts...)
	return circuitbreaker.New("studyroom-api", constants.DefaultBreakerMaxFailures,
		time.Duration(constants.DefaultBreakerCooldownSec)*time.Second, opts...)
}

func isServerFailure(err error) bool {
	appErr, ok := apperrors.As(err)
	if !ok {
		return true
	}
	status, _ := appErr.Context["status_code"].(int)
	return status == 0 || status >= http.StatusInternalServerError
}

func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger *logrus.Logger, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		client:  httpClient,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to create request")
	}
	if err := c.authorize(ctx, req.Header); err != nil {
		return nil, err
	}
	tracing.InjectHTTP(ctx, req.Header)
	return req, nil
}

func (c *Client) authorize(ctx context.Context, header http.Header) error {
	if c.tokens == nil {
		return apperrors.NewAuthError("no token source configured")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.Wrap(err, apperrors.ErrCodeAuthentication, "failed to fetch token").
			WithUserMessage("You need to sign in first")
	}
	header.Set("Authorization", "Bearer "+token)
	header.Set(versioning.AcceptVersionHeader, versioning.CurrentVersion.String())
	return nil
}

// doJSON sends in as the JSON body (when non-nil) and decodes a 2xx response
// into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to marshal request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, endpoint string, out interface{}) error {
	if c.breaker == nil {
		return c.send(req, endpoint, out)
	}
	err := c.breaker.Execute(req.Context(), func(context.Context) error {
		return c.send(req, endpoint, out)
	})
	var open *circuitbreaker.OpenError
	if errors.As(err, &open) {
		appErr := apperrors.WrapRetryable(err, apperrors.ErrCodeBackendAPI, "backend circuit open").
			WithContext("endpoint", endpoint).
			WithUserMessage("The server is unavailable right now")
		return appErr
	}
	return err
}

func (c *Client) send(req *http.Request, endpoint string, out interface{}) error {
	c.logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"endpoint": endpoint,
	}).Debug("Sending backend request")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewAPIError(endpoint, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serverMessage := readErrorMessage(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("Backend returned error status")
		return apperrors.NewAPIError(endpoint, resp.StatusCode, serverMessage,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeBackendAPI, "failed to decode response").
			WithContext("endpoint", endpoint)
	}
	return nil
}

// readErrorMessage extracts the human-readable "error" field of a JSON error
// body. Anything else yields "".
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body apperrors.HTTPErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Error)
}

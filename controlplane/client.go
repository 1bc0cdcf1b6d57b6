package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/metrics"
)

const (
	// defaultRetryAfter is used when a 429 response carries no Retry-After.
	defaultRetryAfter = 5 * time.Second

	// maxRateLimitRetries bounds the 429 retry loop. The retry is attempted
	// once; a second 429 fails the call.
	maxRateLimitRetries = 1
)

// Config carries the control-plane connection settings.
type Config struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string

	// Token is the bearer token for every request.
	Token string
}

// Client executes operations against the control-plane GraphQL API.
// It implements interfaces.ControlPlaneClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// New creates a control-plane client.
func New(cfg Config, log *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        log,
		sleep:      time.Sleep,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// Execute posts one GraphQL operation and returns the raw data payload.
// operationName is used for logging, metrics and error reporting only.
func (c *Client) Execute(ctx context.Context, operationName, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", operationName, err)
	}

	for attempt := 0; ; attempt++ {
		data, retryAfter, err := c.post(ctx, operationName, body)
		if retryAfter > 0 && attempt < maxRateLimitRetries {
			c.log.Warn("Control plane rate limited, retrying",
				"operation", operationName, "retryAfter", retryAfter)
			metrics.ControlPlaneRetries.Inc()
			c.sleep(retryAfter)
			continue
		}
		if err != nil {
			metrics.ControlPlaneRequests.WithLabelValues(operationName, "error").Inc()
			return nil, err
		}
		metrics.ControlPlaneRequests.WithLabelValues(operationName, "ok").Inc()
		return data, nil
	}
}

// post performs one HTTP round trip. A positive retryAfter signals a 429;
// the error describes the same failure in case the retry budget is spent.
func (c *Client) post(ctx context.Context, operationName string, body []byte) (json.RawMessage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &interfaces.RemoteAPIError{Operation: operationName, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &interfaces.RemoteAPIError{Operation: operationName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Only the delta-seconds form of Retry-After is parsed; the
		// HTTP-date form falls back to the default interval.
		retryAfter := defaultRetryAfter
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, retryAfter, &interfaces.RemoteAPIError{
			Operation:  operationName,
			StatusCode: resp.StatusCode,
			Message:    "rate limited",
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &interfaces.RemoteAPIError{Operation: operationName, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, &interfaces.RemoteAPIError{
			Operation:  operationName,
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, 0, &interfaces.RemoteAPIError{Operation: operationName, Err: err}
	}
	if len(parsed.Errors) > 0 {
		return nil, 0, &interfaces.RemoteAPIError{
			Operation:  operationName,
			StatusCode: resp.StatusCode,
			Message:    parsed.Errors[0].Message,
		}
	}

	return parsed.Data, 0, nil
}

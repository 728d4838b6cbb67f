// Package onebot implements the outbound client for the gateway's action
// API. Every call is a single JSON POST with a bounded timeout: no retries,
// no queueing — callers decide how to degrade when an action fails.
package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lchbot/internal/metrics"
	"lchbot/pkg/logger"
)

// Config configures the client.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client issues action calls against the gateway's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given gateway.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// Ack is the gateway's acknowledgment body for an action call.
type Ack struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
}

// OK reports whether the gateway accepted the action.
func (a *Ack) OK() bool {
	return a.Status != "failed"
}

// Call posts one action to the gateway. It fails fast: transport errors,
// non-2xx statuses, malformed ack bodies and gateway-side failures all
// surface as *TransportError without retry.
func (c *Client) Call(ctx context.Context, action string, params any) (*Ack, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("encode params: %w", err)}
	}

	url := c.baseURL + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ActionsSent.WithLabelValues(action, "error").Inc()
		return nil, &TransportError{Action: action, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ActionsSent.WithLabelValues(action, "error").Inc()
		return nil, &TransportError{Action: action, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		metrics.ActionsSent.WithLabelValues(action, "error").Inc()
		return nil, &TransportError{Action: action, Status: resp.StatusCode, Err: fmt.Errorf("decode ack: %w", err)}
	}

	if !ack.OK() {
		metrics.ActionsSent.WithLabelValues(action, "failed").Inc()
		logger.Warn().
			Str("action", action).
			Int("retcode", ack.RetCode).
			Msg("gateway rejected action")
		return &ack, &TransportError{Action: action, Status: resp.StatusCode, RetCode: ack.RetCode, Err: fmt.Errorf("gateway reported failure (retcode %d)", ack.RetCode)}
	}

	metrics.ActionsSent.WithLabelValues(action, "ok").Inc()
	return &ack, nil
}

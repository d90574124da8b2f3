// Package pagerduty raises audit failures as PagerDuty Events API v2 alerts.
package pagerduty

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

	"github.com/target/mmk-site-audit/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	defaultTimeout = 5 * time.Second
	retryStep      = 200 * time.Millisecond
	maxErrorBody   = 4 << 10
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	// Endpoint overrides APIEndpoint.
	Endpoint   string
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes trigger events. It is safe for concurrent use.
type Client struct {
	endpoint   string
	routingKey string
	source     string
	component  string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// event is the Events API v2 envelope.
type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details"`
}

// NewClient requires a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		routingKey: key,
		source:     orDefault(cfg.Source, "siteaudit"),
		component:  orDefault(cfg.Component, "audit-engine"),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendAuditFailure triggers an alert deduplicated per target domain. Rejected payloads are
// not retried.
func (c *Client) SendAuditFailure(ctx context.Context, payload notify.AuditFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*retryStep); err != nil {
				return err
			}
		}
		lastErr = c.submit(ctx, body)
		if lastErr == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && !apiErr.Retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) buildEvent(payload notify.AuditFailurePayload) event {
	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	details := make(map[string]string, len(payload.Metadata)+6)
	for k, v := range payload.Metadata {
		details[k] = v
	}
	// audit fields always win over free-form metadata
	details["job_id"] = payload.JobID
	details["target_url"] = payload.TargetURL
	details["domain"] = payload.Domain
	details["error_code"] = payload.ErrorCode
	details["error"] = payload.Error
	details["error_class"] = payload.ErrorClass

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    "audit:" + orDefault(payload.Domain, orDefault(payload.JobID, "unknown")),
		Payload: eventPayload{
			Summary: fmt.Sprintf("Site audit of %s %s (%s)",
				orDefault(payload.TargetURL, "unknown target"),
				payload.Outcome(),
				orDefault(payload.ErrorCode, "unknown"),
			),
			Severity:      orDefault(strings.ToLower(payload.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     occurredAt.Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

// APIError is a non-2xx answer from the Events API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pagerduty api %s: %s", e.Status, e.Body)
}

// Retryable reports whether PagerDuty asked us to come back later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(raw))}
	if readErr != nil {
		return errors.Join(apiErr, fmt.Errorf("read pagerduty error response: %w", readErr))
	}
	return apiErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// Package slack posts audit failures to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/mmk-site-audit/internal/observability/notify"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultUsername = "siteaudit"
	retryStep       = 200 * time.Millisecond
	maxErrorBody    = 4 << 10
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// ReportURLPrefix links each message to the audit, e.g. https://audit.example.com/api/audits.
	ReportURLPrefix string
}

// Client delivers audit failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	reportBase *url.URL
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// message is the webhook body. Text is the notification fallback for clients that do not
// render blocks.
type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Fields   []textObject `json:"fields,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) textObject { return textObject{Type: "mrkdwn", Text: s} }

// NewClient requires a webhook URL. An unusable ReportURLPrefix is ignored.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultUsername
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retryLimit: max(cfg.RetryLimit, 0),
		reportBase: parseReportBase(cfg.ReportURLPrefix),
		client:     hc,
	}, nil
}

func parseReportBase(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

// SendAuditFailure posts one message, retrying transport failures and non-2xx answers.
func (c *Client) SendAuditFailure(ctx context.Context, payload notify.AuditFailurePayload) error {
	body, err := json.Marshal(c.buildMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * retryStep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) buildMessage(payload notify.AuditFailurePayload) message {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	headline := "*Site audit " + payload.Outcome() + "*"
	if payload.Domain != "" {
		headline += " for " + escape(payload.Domain)
	}

	severity := payload.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}

	var fields []textObject
	addField := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fields = append(fields, mrkdwn("*"+label+"*\n"+value))
		}
	}
	addField("Severity", severity)
	addField("Audit", c.jobReference(payload.JobID))
	addField("Target", escape(payload.TargetURL))
	addField("Error code", payload.ErrorCode)
	addField("Error class", payload.ErrorClass)
	addField("Error", escape(payload.Error))
	for _, k := range sortedKeys(payload.Metadata) {
		addField(escape(k), escape(payload.Metadata[k]))
	}

	blocks := []block{{Type: "section", Text: &textObject{Type: "mrkdwn", Text: headline}}}
	// Slack rejects sections with more than ten fields
	for chunk := range slices.Chunk(fields, 10) {
		blocks = append(blocks, block{Type: "section", Fields: chunk})
	}
	blocks = append(blocks, block{
		Type:     "context",
		Elements: []textObject{mrkdwn("Occurred " + occurredAt.UTC().Format(time.RFC3339))},
	})

	fallback := headline
	if payload.ErrorCode != "" {
		fallback += " (" + payload.ErrorCode + ")"
	}

	return message{
		Text:     fallback,
		Username: c.username,
		Channel:  c.channel,
		Blocks:   blocks,
	}
}

// jobReference renders the job id as a link to its status endpoint when a report base is set.
func (c *Client) jobReference(jobID string) string {
	raw := strings.TrimSpace(jobID)
	if raw == "" {
		return ""
	}
	id := escape(raw)
	if c.reportBase == nil {
		return "`" + id + "`"
	}
	return "<" + c.reportBase.JoinPath(raw, "status").String() + "|" + id + ">"
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(value string) string {
	return escaper.Replace(value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(raw)))
}

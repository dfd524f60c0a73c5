package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snare/internal/config"
)

const userAgent = "snare/1"

// Event names an alert type.
type Event string

const (
	EventTamper        Event = "tamper"
	EventLedgerFailure Event = "ledger_failure"
	EventAgentStarted  Event = "agent_started"
	EventTest          Event = "test"
)

// Payload carries event fields. Recognized keys per event:
//
//	tamper:         path, source, detail
//	ledger_failure: error
//	agent_started:  root, entries
type Payload map[string]any

// Service publishes agent events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when
// notify.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notify.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTamper:
		path := payloadString(payload, "path")
		detail := payloadString(payload, "detail")
		if detail == "" {
			detail = "touched"
		}
		body := fmt.Sprintf("Decoy %s: %s", detail, path)
		if source := payloadString(payload, "source"); source != "" {
			body += "\nDetected by: " + source
		}
		return message{
			title:    "Snare - Decoy Tampered",
			body:     body,
			tags:     []string{"snare", "tamper", "rotating_light"},
			priority: "high",
		}, true
	case EventLedgerFailure:
		errText := payloadString(payload, "error")
		if errText == "" {
			errText = "unknown"
		}
		return message{
			title:    "Snare - Ledger Failure",
			body:     "Ledger write failed; cycle abandoned: " + errText,
			tags:     []string{"snare", "ledger", "error"},
			priority: "high",
		}, true
	case EventAgentStarted:
		return message{
			title: "Snare - Agent Started",
			body: fmt.Sprintf("Monitoring %s (%s decoys tracked)",
				payloadString(payload, "root"), payloadString(payload, "entries")),
			tags: []string{"snare", "started"},
		}, true
	case EventTest:
		return message{
			title:    "Snare - Test",
			body:     "Notification system test",
			tags:     []string{"snare", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(p Payload, key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// SlackConfig holds the incoming-webhook settings for Slack notifications.
type SlackConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Channel    string        `yaml:"channel"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *SlackConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c *SlackConfig) Validate() error {
	if c.WebhookURL == "" {
		return errors.New("webhook_url is required")
	}
	return nil
}

// SlackSink posts events to a Slack incoming webhook.
type SlackSink struct {
	cfg    SlackConfig
	client *http.Client
}

func NewSlackSink(cfg SlackConfig) (*SlackSink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SlackSink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *SlackSink) Name() string { return "slack" }

type slackPayload struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

func (s *SlackSink) Emit(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(slackPayload{
		Text:    formatEvent(ev),
		Channel: s.cfg.Channel,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook: unexpected status %s", resp.Status)
	}
	return nil
}

func formatEvent(ev domain.Event) string {
	icon := ":warning:"
	switch {
	case ev.Kind == domain.EventDepletion:
		icon = ":hourglass_flowing_sand:"
	case ev.Kind == domain.EventCorrelatedDrain:
		icon = ":rotating_light:"
	case ev.Severity == domain.SeverityAnomaly:
		icon = ":rotating_light:"
	}
	return fmt.Sprintf("%s *%s* `%s/%s` (%s)\n%s",
		icon, ev.Kind, ev.Entity, ev.Signal, ev.Severity, ev.Rationale)
}

var _ ports.ActionSink = (*SlackSink)(nil)

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when webhook is empty so callers can skip it.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	TS     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func slackColor(s domain.Status) string {
	switch s {
	case domain.StatusUp:
		return "good"
	case domain.StatusDown:
		return "danger"
	}
	return "#6B7280"
}

func slackMessage(evt Event) slackPayload {
	fields := []slackField{
		{Title: "URL", Value: evt.URL},
		{Title: "Transition", Value: string(evt.Old) + " -> " + string(evt.New), Short: true},
		{Title: "Latency", Value: fmt.Sprintf("%dms", evt.DurationMS), Short: true},
	}
	if evt.StatusCode != nil {
		fields = append(fields, slackField{Title: "HTTP", Value: fmt.Sprint(*evt.StatusCode), Short: true})
	}
	if evt.Error != "" {
		fields = append(fields, slackField{Title: "Error", Value: evt.Error})
	}
	return slackPayload{
		Text: "*" + evt.Title() + "*\n" + evt.Text(),
		Attachments: []slackAttachment{{
			Color:  slackColor(evt.New),
			Fields: fields,
			TS:     evt.At.Unix(),
		}},
	}
}

func (s *Slack) Notify(ctx context.Context, evt Event) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(slackMessage(evt))
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

func downEvent() Event {
	return Event{
		MonitorID:   "m1",
		MonitorName: "API",
		URL:         "https://api.example.com",
		Old:         domain.StatusUp,
		New:         domain.StatusDown,
		At:          time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		StatusCode:  domain.Int(503),
		DurationMS:  42,
		Error:       "http status 503 outside accepted range 200-399",
	}
}

func TestSlack_OK(t *testing.T) {
	var payload slackPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if s == nil {
		t.Fatal("expected slack client")
	}
	if err := s.Notify(context.Background(), downEvent()); err != nil {
		t.Fatalf("notify err: %v", err)
	}
	got := payload.Text
	if !strings.HasPrefix(got, "*🔴 API is DOWN*") {
		t.Fatalf("payload not as expected: %q", got)
	}
	if !strings.Contains(got, "HTTP: 503") || !strings.Contains(got, "UP -> DOWN") {
		t.Fatalf("payload missing details: %q", got)
	}
	if len(payload.Attachments) != 1 || payload.Attachments[0].Color != "danger" {
		t.Fatalf("want one danger attachment, got %+v", payload.Attachments)
	}
	if payload.Attachments[0].TS != downEvent().At.Unix() {
		t.Fatalf("attachment ts=%d", payload.Attachments[0].TS)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if err := s.Notify(context.Background(), downEvent()); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestSlack_DisabledWhenEmpty(t *testing.T) {
	if NewSlack("") != nil {
		t.Fatalf("empty webhook should disable slack")
	}
}

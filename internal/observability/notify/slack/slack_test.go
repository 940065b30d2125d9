package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/target/jobsync/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#jobsync-alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.PassFailurePayload{
		PassID:     "pass-123",
		Phase:      "crawling",
		Resumed:    true,
		Pages:      7,
		Listings:   140,
		Error:      "listing source unavailable",
		ErrorClass: "source_fetcherror",
		Metadata:   map[string]string{"source": "careers"},
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#jobsync-alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	for _, want := range []string{
		"Reconciliation pass failed", "pass-123", "crawling", "Resumed: yes",
		"Pages: 7", "Listings: 140", "source_fetcherror", "listing source unavailable", "source: careers",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message text missing %q: %s", want, text)
		}
	}
}

func TestFormatMessageEscapesError(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.PassFailurePayload{Error: "status 502 <html> & more"})

	text, _ := msg["text"].(string)
	if !strings.Contains(text, "status 502 &lt;html&gt; &amp; more") {
		t.Fatalf("expected escaped error, got: %s", text)
	}
	if strings.Contains(text, "Pages:") {
		t.Fatalf("expected zero counters to be omitted, got: %s", text)
	}
}

func TestSendPassFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg map[string]any
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("invalid json body: %v", err)
		}
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err = client.SendPassFailure(context.Background(), notify.PassFailurePayload{PassID: "p1"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSendPassFailureReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendPassFailure(context.Background(), notify.PassFailurePayload{PassID: "p1"})
	if err == nil || !strings.Contains(err.Error(), "invalid_payload") {
		t.Fatalf("expected webhook error body in error, got %v", err)
	}
}

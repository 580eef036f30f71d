package sendgrid

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/resilience"
)

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})
}

func testMessage() domain.EmailMessage {
	return domain.EmailMessage{
		To:      "alice@example.com",
		Subject: "Mock Exam grading results for Alice on 2025-02-03",
		Body:    "Please find attached the mock exam.",
		Attachment: &domain.Attachment{
			Name:        "Alice - assessment.docx",
			ContentType: domain.FormatDocx.MimeType(),
			Data:        []byte("DOCX"),
		},
	}
}

func TestSendPostsV3Payload(t *testing.T) {
	var payload map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	mailer := New(Config{APIKey: "sg-key", Host: server.URL, FromName: "Grading Assistant", FromEmail: "grader@example.com"}, fastExecutor())
	if err := mailer.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if auth != "Bearer sg-key" {
		t.Fatalf("unexpected auth header %q", auth)
	}

	personalizations, _ := payload["personalizations"].([]any)
	if len(personalizations) != 1 {
		t.Fatalf("expected one personalization, got %v", payload["personalizations"])
	}
	p, _ := personalizations[0].(map[string]any)
	if p["subject"] != "Mock Exam grading results for Alice on 2025-02-03" {
		t.Fatalf("unexpected subject %v", p["subject"])
	}
	attachments, _ := payload["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("expected one attachment, got %v", payload["attachments"])
	}
	a, _ := attachments[0].(map[string]any)
	if a["filename"] != "Alice - assessment.docx" || a["content"] != base64.StdEncoding.EncodeToString([]byte("DOCX")) {
		t.Fatalf("unexpected attachment %v", a)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	mailer := New(Config{APIKey: "k", Host: server.URL, FromEmail: "grader@example.com"}, fastExecutor())
	if err := mailer.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestSendRejectionIsDeliveryError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"errors":[{"message":"bad from"}]}`, http.StatusForbidden)
	}))
	defer server.Close()

	mailer := New(Config{APIKey: "k", Host: server.URL, FromEmail: "grader@example.com"}, fastExecutor())
	err := mailer.Send(context.Background(), testMessage())
	if !domain.IsKind(err, domain.ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry, got %d calls", calls.Load())
	}
}

func TestSendValidatesRecipient(t *testing.T) {
	mailer := New(Config{APIKey: "k", Host: "http://127.0.0.1:1"}, fastExecutor())
	msg := testMessage()
	msg.To = "not-an-address"
	if err := mailer.Send(context.Background(), msg); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

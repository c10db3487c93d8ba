package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestLogProviderSend(t *testing.T) {
	provider := NewLogProvider(slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := provider.Send(context.Background(), Message{
		From:    "inventory@example.com",
		To:      []string{"head@example.com"},
		Subject: "New tree photo submission",
		Text:    "A narra near Mambukal",
	})
	if err != nil {
		t.Fatalf("LogProvider.Send() error = %v", err)
	}
	if !strings.HasPrefix(result.ProviderMessageID, "log-") {
		t.Errorf("LogProvider.Send() message ID = %v, want prefix 'log-'", result.ProviderMessageID)
	}
}

func TestMailerFillsDefaultSender(t *testing.T) {
	provider := &MemoryProvider{}
	m := New(provider, "noreply@negrostrees.local")

	if _, err := m.Send(context.Background(), Message{To: []string{"head@example.com"}, Subject: "Hi"}); err != nil {
		t.Fatalf("Mailer.Send() error = %v", err)
	}
	sent := provider.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].From != "noreply@negrostrees.local" {
		t.Errorf("From = %q, want default sender", sent[0].From)
	}
}

func TestMailerRejectsBlankRecipients(t *testing.T) {
	provider := &MemoryProvider{}
	m := New(provider, "noreply@negrostrees.local")

	_, err := m.Send(context.Background(), Message{To: []string{" ", ""}, Subject: "Hi"})
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if len(provider.Sent()) != 0 {
		t.Fatal("provider should not be called without recipients")
	}
}

func TestMailerPropagatesProviderError(t *testing.T) {
	provider := &MemoryProvider{Err: errors.New("quota exceeded")}
	m := New(provider, "noreply@negrostrees.local")

	if _, err := m.Send(context.Background(), Message{To: []string{"a@example.com"}}); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestSplitRecipients(t *testing.T) {
	got := SplitRecipients(" a@example.com, ,b@example.com ")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("unexpected recipients: %#v", got)
	}
}

func TestProviderNames(t *testing.T) {
	if got := New(&MemoryProvider{}, "").ProviderName(); got != "memory" {
		t.Errorf("ProviderName() = %v, want 'memory'", got)
	}
	if got := NewResendProvider("fake-api-key").Name(); got != "resend" {
		t.Errorf("ResendProvider.Name() = %v, want 'resend'", got)
	}
}

func TestResendRequestSortsTags(t *testing.T) {
	req := resendRequest(Message{
		From:    "noreply@negrostrees.local",
		To:      []string{"head@example.com"},
		ReplyTo: "curator@example.com",
		Subject: "New tree photo submission",
		Tags:    map[string]string{"submission_id": "12", "category": "photo_submission"},
	})
	if req.ReplyTo != "curator@example.com" {
		t.Errorf("ReplyTo = %q", req.ReplyTo)
	}
	if len(req.Tags) != 2 || req.Tags[0].Name != "category" || req.Tags[1].Value != "12" {
		t.Fatalf("unexpected tags %#v", req.Tags)
	}
}

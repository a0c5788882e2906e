package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/config"
)

func TestSendPaymentDecisionDisabled(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.SendPaymentDecision(context.Background(), "somchai@example.com", "Somchai", true, ""); err != nil {
		t.Fatalf("disabled service must not error: %v", err)
	}
}

func TestSendPaymentDecisionInvalidRecipient(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.SendPaymentDecision(context.Background(), "not-an-email", "X", true, ""); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestNewServiceRejectsBadSender(t *testing.T) {
	_, err := NewService(config.EmailConfig{Enabled: true, From: "broken"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid sender")
	}
}

func TestRenderDecision(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	approved, err := svc.renderDecision(DecisionData{FirstName: "Somchai", Approved: true, CurrentYear: 2026})
	if err != nil {
		t.Fatalf("render approved: %v", err)
	}
	if !strings.Contains(approved, "confirmed") {
		t.Errorf("approved body missing confirmation text: %q", approved)
	}

	rejected, err := svc.renderDecision(DecisionData{FirstName: "Somchai", Approved: false, Note: "blurry slip"})
	if err != nil {
		t.Fatalf("render rejected: %v", err)
	}
	if !strings.Contains(rejected, "could not verify") {
		t.Errorf("rejected body missing rejection text: %q", rejected)
	}
	if !strings.Contains(rejected, "blurry slip") {
		t.Errorf("rejected body missing note: %q", rejected)
	}
}

func TestSendViaResend(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/emails" {
			t.Errorf("Expected POST /emails, got %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req resend.SendEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.From != "camp@example.com" {
			t.Errorf("From = %q", req.From)
		}
		if len(req.To) != 1 || req.To[0] != "somchai@example.com" {
			t.Errorf("To = %v", req.To)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "mock-email-id"})
	}))
	defer mockServer.Close()

	client := resend.NewClient("test-api-key")
	baseURL, _ := url.Parse(mockServer.URL)
	client.BaseURL = baseURL

	svc := &Service{
		config:       config.EmailConfig{Enabled: true, From: "camp@example.com"},
		resendClient: client,
		logger:       zerolog.Nop(),
	}

	if err := svc.sendViaResend(context.Background(), "somchai@example.com", "Subject", "<p>Body</p>"); err != nil {
		t.Fatalf("sendViaResend: %v", err)
	}
}

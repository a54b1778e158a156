package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/domain"
)

func webhookAgent(url string) *domain.Agent {
	return &domain.Agent{
		ID: "notifier",
		Config: domain.AgentConfig{
			SpecialHandler: "webhook",
			Extra:          map[string]any{"url": url},
		},
	}
}

func TestWebhookHandler_Delivers(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer srv.Close()

	runID := uuid.New()
	res, err := WebhookHandler(context.Background(), HandlerRequest{
		Message: "new leads ready",
		RunID:   runID,
		Agent:   webhookAgent(srv.URL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received["message"] != "new leads ready" {
		t.Errorf("expected message in payload, got %v", received["message"])
	}
	if received["agent_id"] != "notifier" {
		t.Errorf("expected agent_id in payload, got %v", received["agent_id"])
	}

	if res.Extra["status_code"] != http.StatusOK {
		t.Errorf("expected status_code 200, got %v", res.Extra["status_code"])
	}
	body, ok := res.Extra["body"].(map[string]any)
	if !ok || body["accepted"] != true {
		t.Errorf("expected parsed JSON body, got %v", res.Extra["body"])
	}
}

func TestWebhookHandler_HTTPErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := WebhookHandler(context.Background(), HandlerRequest{
		Message: "x",
		Agent:   webhookAgent(srv.URL),
	})
	if !errors.Is(err, ErrWebhookRequest) {
		t.Errorf("expected ErrWebhookRequest, got %v", err)
	}
}

func TestWebhookHandler_MissingURL(t *testing.T) {
	_, err := WebhookHandler(context.Background(), HandlerRequest{
		Message: "x",
		Agent:   &domain.Agent{ID: "bare"},
	})
	if !errors.Is(err, ErrWebhookRequest) {
		t.Errorf("expected ErrWebhookRequest for missing url, got %v", err)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicClientSendsAlternatingTurns(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "SELECT 1"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(Config{BaseURL: srv.URL, APIKey: "k1", Model: "claude-test"})
	if err != nil {
		t.Fatalf("NewAnthropicClient() error = %v", err)
	}
	text, err := client.Complete(context.Background(), Seeded("you write SQL", "count users"))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("Complete() = %q", text)
	}
	if gotKey != "k1" {
		t.Fatalf("X-Api-Key = %q", gotKey)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if body.Model != "claude-test" {
		t.Fatalf("model = %q", body.Model)
	}
	roles := []string{"user", "assistant", "user"}
	texts := []string{"you write SQL", "Okay.", "count users"}
	if len(body.Messages) != len(roles) {
		t.Fatalf("messages = %#v", body.Messages)
	}
	for i := range roles {
		if body.Messages[i].Role != roles[i] || len(body.Messages[i].Content) != 1 || body.Messages[i].Content[0].Text != texts[i] {
			t.Fatalf("messages[%d] = %#v", i, body.Messages[i])
		}
	}
}

func TestAnthropicClientDoesNotRetryServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(Config{BaseURL: srv.URL, APIKey: "k1"})
	if err != nil {
		t.Fatalf("NewAnthropicClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), Seeded("a", "b")); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

package extractor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChatClientComplete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"who\":[\"친구\"]}"}}]}`)
	}))
	defer server.Close()

	client, err := NewChatClient(ChatConfig{BaseURL: server.URL + "/v1", APIKey: "sk-test", Model: "test-model", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewChatClient: %v", err)
	}

	got, err := client.Complete(context.Background(), buildKeywordsRequest("오늘 친구와 놀았다"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"who":["친구"]}` {
		t.Errorf("content = %q", got)
	}

	if body["model"] != "test-model" {
		t.Errorf("model = %v", body["model"])
	}
	if rf, ok := body["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v", body["response_format"])
	}
	if msgs, ok := body["messages"].([]any); !ok || len(msgs) != 2 {
		t.Errorf("messages = %v", body["messages"])
	}
}

func TestChatClientServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer server.Close()

	client, err := NewChatClient(ChatConfig{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewChatClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), buildSummarizeRequest("x")); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	// the adapter turns the failure into the sentinel
	if got := NewSummarizer(client, nil).Summarize(context.Background(), "x"); got != SummaryFailedText {
		t.Errorf("Summarize = %q", got)
	}
}

func TestNewChatClientRequiresKey(t *testing.T) {
	if _, err := NewChatClient(ChatConfig{APIKey: "  "}); err == nil {
		t.Error("expected error for blank api key")
	}
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := chatResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{{
			Message: struct {
				Content string `json:"content"`
			}{Content: reply},
			FinishReason: "stop",
		}}
		resp.Usage.TotalTokens = 42
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestChatSuccessAppendsHistory(t *testing.T) {
	srv := newTestServer(t, "Paris is the capital of France.")
	defer srv.Close()

	c := NewClient(&Config{CloudURL: srv.URL, Model: "test-model", SystemPrompt: "sys", MaxHistory: 5})

	reply, fallback, err := c.Chat(context.Background(), "what is the capital of france", "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if fallback != NoFallback {
		t.Fatalf("fallback = %v, want NoFallback", fallback)
	}
	if reply != "Paris is the capital of France." {
		t.Fatalf("reply = %q", reply)
	}
	if len(c.history) != 2 {
		t.Fatalf("history len = %d, want 2", len(c.history))
	}
}

func TestChatFallsBackToLocalWhenCloudUnreachable(t *testing.T) {
	local := newTestServer(t, "local reply")
	defer local.Close()

	c := NewClient(&Config{
		CloudURL:     "http://127.0.0.1:1", // nothing listens here
		LocalURL:     local.URL,
		Model:        "test-model",
		SystemPrompt: "sys",
		ProbeTimeout: 200 * time.Millisecond,
	})

	reply, fallback, err := c.Chat(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if fallback != FellBackToLocal {
		t.Fatalf("fallback = %v, want FellBackToLocal", fallback)
	}
	if reply != "local reply" {
		t.Fatalf("reply = %q", reply)
	}
	if c.Provider() != Local {
		t.Fatalf("provider = %v, want Local after fallback", c.Provider())
	}
}

func TestChatUnreachableBothReturnsError(t *testing.T) {
	c := NewClient(&Config{
		CloudURL:     "http://127.0.0.1:1",
		LocalURL:     "http://127.0.0.1:2",
		Model:        "test-model",
		ProbeTimeout: 100 * time.Millisecond,
	})

	_, fallback, err := c.Chat(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("expected error when both endpoints unreachable")
	}
	if fallback != Unreachable {
		t.Fatalf("fallback = %v, want Unreachable", fallback)
	}
}

func TestVisionMessageShape(t *testing.T) {
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]any `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1]
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"a cat"},"finish_reason":"stop"}],"usage":{"total_tokens":1}}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{CloudURL: srv.URL, Model: "test-model"})

	_, _, err := c.Chat(context.Background(), "what am I looking at?", "YmFzZTY0")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	parts, ok := last["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %#v, want a text part and an image_url part", last["content"])
	}
	img, _ := parts[1].(map[string]any)
	url, _ := img["image_url"].(map[string]any)
	if img["type"] != "image_url" || url["url"] != "data:image/jpeg;base64,YmFzZTY0" {
		t.Fatalf("image part = %#v", parts[1])
	}
}

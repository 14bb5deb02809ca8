package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nimbuschat/backend/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.Config{
		OpenRouterAPIKey:  "test-key",
		OpenRouterBaseURL: server.URL,
	}, server.Client())
}

func TestStreamChatCompletionDeltasAndUsage(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16,"cost":"0.000125"},"choices":[]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var started bool
	var text strings.Builder
	var usage *Usage
	err := client.StreamChatCompletion(context.Background(), StreamRequest{
		Model:    "google/gemini-2.5-flash-preview-05-20",
		Messages: []Message{{Role: "user", Content: "hi"}},
	},
		func() error { started = true; return nil },
		func(delta string) error { text.WriteString(delta); return nil },
		func(u Usage) error { usage = &u; return nil },
	)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if !started {
		t.Fatal("onStart never fired")
	}
	if text.String() != "Hello" {
		t.Fatalf("unexpected text %q", text.String())
	}
	if usage == nil || usage.TotalTokens != 16 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if usage.CostMicrosUSD == nil || *usage.CostMicrosUSD != 125 {
		t.Fatalf("unexpected cost %+v", usage.CostMicrosUSD)
	}
}

func TestStreamChatCompletionUpstreamError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	err := client.StreamChatCompletion(context.Background(), StreamRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected upstream status error, got %v", err)
	}
}

func TestStreamChatCompletionInlineError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"error":{"message":"model is overloaded"},"choices":[]}`+"\n\n")
	})

	err := client.StreamChatCompletion(context.Background(), StreamRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, nil, nil, nil)
	if err == nil || err.Error() != "model is overloaded" {
		t.Fatalf("expected inline error, got %v", err)
	}
}

func TestStreamChatCompletionRequiresAPIKey(t *testing.T) {
	client := NewClient(config.Config{OpenRouterBaseURL: "http://localhost"}, nil)
	err := client.StreamChatCompletion(context.Background(), StreamRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, nil, nil, nil)
	if err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestListModelsCapabilities(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[
			{"id":"a/vision","name":"Vision A","context_length":128000,
			 "supported_parameters":["tools","reasoning"],
			 "architecture":{"input_modalities":["text","image"]},
			 "pricing":{"prompt":"0.0000005","completion":"0.0000015"}},
			{"id":"b/plain","name":"","context_length":0,
			 "top_provider":{"context_length":32000},
			 "pricing":{"prompt":"0","completion":"0"}},
			{"id":"","name":"skipped"}
		]}`)
	})

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}

	vision := models[0]
	if vision.ID != "a/vision" || vision.ContextWindow != 128000 {
		t.Fatalf("unexpected model %+v", vision)
	}
	wantCaps := []string{"vision", "tools", "reasoning"}
	if len(vision.Capabilities) != len(wantCaps) {
		t.Fatalf("unexpected capabilities %v", vision.Capabilities)
	}
	for i, c := range wantCaps {
		if vision.Capabilities[i] != c {
			t.Fatalf("unexpected capabilities %v", vision.Capabilities)
		}
	}
	if vision.PromptPriceMicrosUSD != 1 {
		t.Fatalf("unexpected prompt price %d", vision.PromptPriceMicrosUSD)
	}

	plain := models[1]
	if plain.Name != "b/plain" || plain.ContextWindow != 32000 || plain.Capabilities != nil {
		t.Fatalf("unexpected model %+v", plain)
	}
}

func TestParsePriceMicros(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`"0.000002"`, 2},
		{`0.0000005`, 1},
		{`"1/2000000"`, 1},
		{`null`, 0},
		{`"-1"`, 0},
		{`"garbage"`, 0},
	}
	for _, tc := range cases {
		if got := parsePriceMicros([]byte(tc.raw)); got != tc.want {
			t.Errorf("parsePriceMicros(%s) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

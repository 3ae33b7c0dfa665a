package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	text := "```json\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithPlainFence(t *testing.T) {
	text := "```\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	result := ParseJSONResponse("not json at all")
	if result != nil {
		t.Error("expected nil for invalid JSON")
	}
}

func TestParseJSONResponseEmpty(t *testing.T) {
	result := ParseJSONResponse("")
	if result != nil {
		t.Error("expected nil for empty string")
	}
}

func TestParseJSONResponseWhitespace(t *testing.T) {
	result := ParseJSONResponse("  \n  {\"key\": \"value\"}  \n  ")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithPreamble(t *testing.T) {
	result := ParseJSONResponse("Sure! Here is the post:\n{\"content\": \"hi\"}\nHope it helps.")
	if result == nil || result["content"] != "hi" {
		t.Errorf("expected content=hi, got %v", result)
	}
}

func TestParseJSONResponseBareFence(t *testing.T) {
	if result := ParseJSONResponse("```"); result != nil {
		t.Errorf("expected nil for a lone fence, got %v", result)
	}
}

func TestStringList(t *testing.T) {
	got := StringList([]any{"#go", 3.0, "#dev"})
	if len(got) != 2 || got[0] != "#go" || got[1] != "#dev" {
		t.Errorf("unexpected list %v", got)
	}
	if StringList("nope") != nil {
		t.Error("expected nil for non-array")
	}
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("expected api key header")
		}
		if r.Header.Get("Anthropic-Version") != anthropicVersion {
			t.Errorf("expected version header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MaxTokens != 300 || len(req.Messages) != 1 || req.Messages[0].Content != "write" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}]}`)
	}))
	defer server.Close()

	p := &AnthropicProvider{Model: "test-model", APIKey: "test-key", BaseURL: server.URL, client: server.Client()}
	got, err := p.Generate(context.Background(), "write", 300)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("expected joined text, got %q", got)
	}
}

func TestAnthropicGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := &AnthropicProvider{Model: "m", APIKey: "k", BaseURL: server.URL, client: server.Client()}
	_, err := p.Generate(context.Background(), "write", 10)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected 503 error, got %v", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected bearer token")
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	p := &OpenAIProvider{Model: "gpt", APIKey: "sk-test", BaseURL: server.URL, client: server.Client()}
	got, err := p.Generate(context.Background(), "hi", 10)
	if err != nil || got != "ok" {
		t.Errorf("expected ok, got %q %v", got, err)
	}
}

func TestOllamaGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3.2:latest"}]}`)
		case "/api/chat":
			fmt.Fprint(w, `{"message":{"content":"local"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewOllamaProvider("llama3.2", server.URL+"/")
	if !p.IsConfigured() {
		t.Fatal("expected model to be found")
	}
	got, err := p.Generate(context.Background(), "hi", 10)
	if err != nil || got != "local" {
		t.Errorf("expected local, got %q %v", got, err)
	}
}

func TestCreateProviderNoneAvailable(t *testing.T) {
	t.Setenv("AUTOPOSTER_TEST_OPENAI", "")
	t.Setenv("AUTOPOSTER_TEST_ANTHROPIC", "")
	p := CreateProvider(Options{
		Provider:        "openai",
		OpenAIModel:     "gpt",
		APIKeyEnv:       "AUTOPOSTER_TEST_OPENAI",
		AnthropicModel:  "m",
		AnthropicKeyEnv: "AUTOPOSTER_TEST_ANTHROPIC",
	})
	if p != nil {
		t.Errorf("expected nil provider, got %s", p.Name())
	}
}

func TestCreateProviderPrefersAnthropic(t *testing.T) {
	t.Setenv("AUTOPOSTER_TEST_OPENAI", "sk")
	t.Setenv("AUTOPOSTER_TEST_ANTHROPIC", "ak")
	p := CreateProvider(Options{
		Provider:        "anthropic",
		OpenAIModel:     "gpt",
		APIKeyEnv:       "AUTOPOSTER_TEST_OPENAI",
		AnthropicModel:  "m",
		AnthropicKeyEnv: "AUTOPOSTER_TEST_ANTHROPIC",
	})
	if p == nil || p.Name() != "anthropic" {
		t.Errorf("expected anthropic provider, got %v", p)
	}
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClaudeSend(t *testing.T) {
	var got claudeMessagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "sk-ant" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":" world"}]}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeConfig{BaseURL: srv.URL + "/v1"})
	res := p.Send(context.Background(), Request{Message: "hi", APIKey: "sk-ant", PriorContext: "ctx"})
	if !res.OK() || res.Text != "Hello world" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got.Model != defaultClaudeModel || got.MaxTokens != defaultMaxTokens {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Messages[0].Content != "ctx\n\nUser: hi" {
		t.Fatalf("prompt = %q", got.Messages[0].Content)
	}
}

func TestClaudeSendErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeConfig{BaseURL: srv.URL})
	res := p.Send(context.Background(), Request{Message: "hi", APIKey: "bad"})
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if res.Failure.Kind != FailureUnauthorized || res.Failure.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if want := "Error: 401 Unauthorized - invalid x-api-key"; res.Render() != want {
		t.Fatalf("render = %q, want %q", res.Render(), want)
	}
}

func TestClaudeSendEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	res := NewClaudeProvider(ClaudeConfig{BaseURL: srv.URL}).Send(context.Background(), Request{Message: "hi", APIKey: "k"})
	if res.OK() || res.Failure.Kind != FailureMalformed {
		t.Fatalf("expected malformed failure, got %+v", res)
	}
}

func TestClaudeValidate(t *testing.T) {
	var maxTokens int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req claudeMessagesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		maxTokens = req.MaxTokens
		if r.Header.Get("x-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"H"}]}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeConfig{BaseURL: srv.URL})
	if !p.Validate(context.Background(), "good") {
		t.Fatalf("expected valid key")
	}
	if maxTokens != 1 {
		t.Fatalf("validate max_tokens = %d, want 1", maxTokens)
	}
	if p.Validate(context.Background(), "bad") {
		t.Fatalf("expected invalid key")
	}
}

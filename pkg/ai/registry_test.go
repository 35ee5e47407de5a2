package ai

import (
	"context"
	"testing"
)

type namedProvider string

func (p namedProvider) Name() string                          { return string(p) }
func (p namedProvider) Send(context.Context, Request) Result   { return reply("ok") }
func (p namedProvider) Validate(context.Context, string) bool { return true }

func TestRegistryLookupAndOrder(t *testing.T) {
	reg, err := NewRegistry(namedProvider("ChatGPT"), namedProvider("Claude"), namedProvider("Gemini"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if p, ok := reg.Lookup("Claude"); !ok || p.Name() != "Claude" {
		t.Fatalf("lookup Claude failed")
	}
	if _, ok := reg.Lookup("claude"); ok {
		t.Fatalf("lookup must be case-sensitive")
	}
	if _, ok := reg.Lookup("UnknownProvider"); ok {
		t.Fatalf("unexpected provider")
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "ChatGPT" || names[1] != "Claude" || names[2] != "Gemini" {
		t.Fatalf("names = %v", names)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(namedProvider("Claude"), namedProvider("Claude")); err == nil {
		t.Fatalf("expected duplicate provider error")
	}
	if _, err := NewRegistry(namedProvider(" ")); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestComposePrompt(t *testing.T) {
	if got := ComposePrompt("", "hi"); got != "hi" {
		t.Fatalf("got %q", got)
	}
	if got := ComposePrompt("summary", "hi"); got != "summary\n\nUser: hi" {
		t.Fatalf("got %q", got)
	}
}

func TestTiktokenCounter(t *testing.T) {
	counter, err := DefaultTokenCounter()
	if err != nil {
		t.Fatalf("token counter: %v", err)
	}
	if n := counter.CountTokens("hello world"); n <= 0 {
		t.Fatalf("count = %d", n)
	}
	if n := counter.CountTokens(""); n != 0 {
		t.Fatalf("empty count = %d", n)
	}
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Provider is the uniform wrapper around one AI chat backend.
// Send never returns a Go error: every outcome is carried by Result so callers
// can always persist a conversational turn.
type Provider interface {
	Name() string
	Send(ctx context.Context, req Request) Result
	Validate(ctx context.Context, apiKey string) bool
}

// Request is one outbound chat call.
type Request struct {
	Message      string
	APIKey       string
	PriorContext string
}

// Prompt returns the text actually sent to the provider.
func (r Request) Prompt() string {
	return ComposePrompt(r.PriorContext, r.Message)
}

// ComposePrompt prepends prior context to the user message when present.
func ComposePrompt(priorContext, message string) string {
	if priorContext == "" {
		return message
	}
	return priorContext + "\n\nUser: " + message
}

type FailureKind string

const (
	FailureTransport    FailureKind = "transport"
	FailureTimeout      FailureKind = "timeout"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureRateLimited  FailureKind = "rate_limited"
	FailureHTTPStatus   FailureKind = "http_status"
	FailureMalformed    FailureKind = "malformed"
	FailureConfig       FailureKind = "config"
)

// Failure describes why a provider call did not produce a reply.
type Failure struct {
	Kind       FailureKind
	Detail     string
	StatusCode int
}

// Result is either a reply (Failure == nil) or a tagged failure.
type Result struct {
	Text    string
	Failure *Failure
}

// OK reports whether the provider produced a reply.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Render returns the text shown in the conversation log.
func (r Result) Render() string {
	if r.Failure == nil {
		return r.Text
	}
	return "Error: " + r.Failure.Detail
}

func reply(text string) Result {
	return Result{Text: text}
}

func fail(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}}
}

// transportFailure classifies an error returned by http.Client.Do.
func transportFailure(err error) Result {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fail(FailureTimeout, "request timed out: %v", err)
	}
	return fail(FailureTransport, "%v", err)
}

// statusFailure classifies a non-2xx response. detail is the provider's error
// message if one could be decoded, otherwise the raw body.
func statusFailure(resp *http.Response, detail string) Result {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	kind := FailureHTTPStatus
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = FailureUnauthorized
	case http.StatusTooManyRequests:
		kind = FailureRateLimited
	}
	return Result{Failure: &Failure{
		Kind:       kind,
		Detail:     fmt.Sprintf("%d %s - %s", resp.StatusCode, http.StatusText(resp.StatusCode), detail),
		StatusCode: resp.StatusCode,
	}}
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClaudeBaseURL = "https://api.anthropic.com/v1"
	defaultClaudeModel   = "claude-3-5-sonnet-latest"
	anthropicVersion     = "2023-06-01"
)

// ClaudeConfig configures the Anthropic Messages API adapter.
type ClaudeConfig struct {
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ClaudeProvider calls the Anthropic Messages API.
type ClaudeProvider struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClaudeProvider builds the Claude adapter.
func NewClaudeProvider(cfg ClaudeConfig) *ClaudeProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ClaudeProvider{
		baseURL:    baseURL,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: httpClientOrDefault(cfg.HTTPClient, cfg.Timeout),
	}
}

// Name implements Provider.
func (p *ClaudeProvider) Name() string {
	return ProviderClaude
}

// Send implements Provider.
func (p *ClaudeProvider) Send(ctx context.Context, req Request) Result {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return fail(FailureConfig, "%s api key required", ProviderClaude)
	}
	resp, err := p.post(ctx, apiKey, req.Prompt(), p.maxTokens)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		var errResp claudeErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			return statusFailure(resp, errResp.Error.Message)
		}
		return statusFailure(resp, string(raw))
	}

	var msgResp claudeMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return fail(FailureMalformed, "decode response: %v", err)
	}
	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return fail(FailureMalformed, "empty response from %s", ProviderClaude)
	}
	return reply(text)
}

// Validate implements Provider with a single-token request.
func (p *ClaudeProvider) Validate(ctx context.Context, apiKey string) bool {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return false
	}
	resp, err := p.post(ctx, apiKey, "Hello", 1)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (p *ClaudeProvider) post(ctx context.Context, apiKey, prompt string, maxTokens int) (*http.Response, error) {
	body, err := json.Marshal(claudeMessagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return p.httpClient.Do(req)
}

// Anthropic Messages API request/response types.

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeMessagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

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
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultProviderTimeout   = 60 * time.Second
	defaultMaxTokens         = 1000
	defaultTemperature       = 0.7
	maxErrorBodyBytes        = 4 << 10
)

// OpenAICompatConfig configures an adapter for any OpenAI-compatible
// /chat/completions endpoint (OpenAI, OpenRouter, DeepSeek, vLLM, ...).
type OpenAICompatConfig struct {
	Name    string
	BaseURL string
	Model   string
	// ValidatePath is a cheap authenticated GET used by Validate, e.g. "/models" or "/key".
	ValidatePath string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// OpenAICompatProvider calls an OpenAI-compatible chat completions API.
type OpenAICompatProvider struct {
	name         string
	baseURL      string
	model        string
	validatePath string
	maxTokens    int
	temperature  float64
	httpClient   *http.Client
}

// NewOpenAICompatProvider builds an adapter. baseURL should include the /v1 prefix.
func NewOpenAICompatProvider(cfg OpenAICompatConfig) *OpenAICompatProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	validatePath := strings.TrimSpace(cfg.ValidatePath)
	if validatePath == "" {
		validatePath = "/models"
	}
	if !strings.HasPrefix(validatePath, "/") {
		validatePath = "/" + validatePath
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &OpenAICompatProvider{
		name:         strings.TrimSpace(cfg.Name),
		baseURL:      baseURL,
		model:        strings.TrimSpace(cfg.Model),
		validatePath: validatePath,
		maxTokens:    maxTokens,
		temperature:  temperature,
		httpClient:   httpClientOrDefault(cfg.HTTPClient, cfg.Timeout),
	}
}

// NewChatGPTProvider returns the ChatGPT adapter against the OpenAI API.
func NewChatGPTProvider(model string, timeout time.Duration) *OpenAICompatProvider {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return NewOpenAICompatProvider(OpenAICompatConfig{
		Name:         ProviderChatGPT,
		BaseURL:      defaultOpenAIBaseURL,
		Model:        model,
		ValidatePath: "/models",
		Timeout:      timeout,
	})
}

// NewGeminiProvider returns the Gemini adapter, routed through OpenRouter.
func NewGeminiProvider(model string, timeout time.Duration) *OpenAICompatProvider {
	if strings.TrimSpace(model) == "" {
		model = "google/gemini-2.0-flash-exp:free"
	}
	return NewOpenAICompatProvider(OpenAICompatConfig{
		Name:         ProviderGemini,
		BaseURL:      defaultOpenRouterBaseURL,
		Model:        model,
		ValidatePath: "/key",
		Timeout:      timeout,
	})
}

// NewDeepSeekProvider returns the DeepSeek adapter, routed through OpenRouter.
func NewDeepSeekProvider(model string, timeout time.Duration) *OpenAICompatProvider {
	if strings.TrimSpace(model) == "" {
		model = "deepseek/deepseek-chat-v3.1:free"
	}
	return NewOpenAICompatProvider(OpenAICompatConfig{
		Name:         ProviderDeepSeek,
		BaseURL:      defaultOpenRouterBaseURL,
		Model:        model,
		ValidatePath: "/key",
		Timeout:      timeout,
	})
}

// Name implements Provider.
func (p *OpenAICompatProvider) Name() string {
	return p.name
}

// Send implements Provider using the chat completions API.
func (p *OpenAICompatProvider) Send(ctx context.Context, req Request) Result {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return fail(FailureConfig, "%s api key required", p.name)
	}
	if p.model == "" {
		return fail(FailureConfig, "%s model required", p.name)
	}

	body, err := json.Marshal(oaiChatRequest{
		Model:       p.model,
		Messages:    []oaiMessage{{Role: "user", Content: req.Prompt()}},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return fail(FailureMalformed, "encode request: %v", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fail(FailureConfig, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		var errResp oaiErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			return statusFailure(resp, errResp.Error.Message)
		}
		return statusFailure(resp, string(raw))
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return fail(FailureMalformed, "decode response: %v", err)
	}
	if len(chatResp.Choices) == 0 {
		return fail(FailureMalformed, "empty response from %s", p.name)
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return fail(FailureMalformed, "empty response from %s", p.name)
	}
	return reply(text)
}

// Validate implements Provider with an authenticated GET on the validate path.
func (p *OpenAICompatProvider) Validate(ctx context.Context, apiKey string) bool {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+p.validatePath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func httpClientOrDefault(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &http.Client{Timeout: timeout}
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

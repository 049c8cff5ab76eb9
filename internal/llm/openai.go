package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/promptwizard/internal/logger"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements Client for OpenAI chat completions.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL selects the public API.
func NewOpenAIClient(apiKey, model, baseURL string, log *logger.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     log.With("provider", ProviderOpenAI, "model", model),
	}
}

func (c *OpenAIClient) Provider() Provider { return ProviderOpenAI }
func (c *OpenAIClient) Model() string      { return c.model }

type openAIRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxTokens           int       `json:"max_tokens,omitempty"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// usesCompletionTokens reports whether model takes max_completion_tokens
// and rejects a custom temperature. Only gpt-3.5 and plain gpt-4 variants
// still use max_tokens.
func usesCompletionTokens(model string) bool {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-3.5") || m == "gpt-4" || strings.HasPrefix(m, "gpt-4-") {
		return false
	}
	return true
}

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	oaiReq := openAIRequest{
		Model:    c.model,
		Messages: req.Messages,
	}
	if usesCompletionTokens(c.model) {
		oaiReq.MaxCompletionTokens = req.MaxTokens
	} else {
		t := req.Temperature
		oaiReq.Temperature = &t
		oaiReq.MaxTokens = req.MaxTokens
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debug("sending completion request", "bytes", len(body))
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("received completion response", "status", resp.StatusCode, "bytes", len(respBody))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimit
	}

	var oaiResp openAIResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if oaiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderError, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, ErrInvalidResponse
	}

	model := oaiResp.Model
	if model == "" {
		model = c.model
	}
	return &Response{
		Content: oaiResp.Choices[0].Message.Content,
		Model:   model,
	}, nil
}

type openAIModelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// ListModels returns the chat-capable models visible to the API key.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch models failed: %s", string(body[:min(200, len(body))]))
	}

	var modelsResp openAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	models := make([]ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		if isOpenAIChatModel(m.ID) {
			models = append(models, ModelInfo{
				ID:       m.ID,
				Name:     formatOpenAIModelName(m.ID),
				Provider: ProviderOpenAI,
			})
		}
	}
	return models, nil
}

func isOpenAIChatModel(id string) bool {
	m := strings.ToLower(id)
	for _, prefix := range []string{"whisper", "tts", "dall-e", "text-", "embedding", "moderation", "babbage", "davinci", "ft:"} {
		if strings.HasPrefix(m, prefix) {
			return false
		}
	}
	for _, prefix := range []string{"gpt-", "o1", "o3", "o4", "chatgpt-"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

var openAIDisplayNames = map[string]string{
	"gpt-4o":        "GPT-4o",
	"gpt-4o-mini":   "GPT-4o Mini",
	"gpt-4-turbo":   "GPT-4 Turbo",
	"gpt-4":         "GPT-4",
	"gpt-3.5-turbo": "GPT-3.5 Turbo",
}

func formatOpenAIModelName(id string) string {
	if name, ok := openAIDisplayNames[id]; ok {
		return name
	}
	name := strings.NewReplacer("-", " ", "_", " ").Replace(id)
	return strings.Replace(name, "gpt ", "GPT ", 1)
}

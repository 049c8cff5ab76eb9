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

const defaultOllamaHost = "http://localhost:11434"

// OllamaClient implements Client for a local Ollama server.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	log     *logger.Logger
}

// NewOllamaClient creates a new Ollama client. An empty host selects localhost:11434.
func NewOllamaClient(host, model string, log *logger.Logger) *OllamaClient {
	if host == "" {
		host = defaultOllamaHost
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(host, "/"),
		model:   model,
		// Local inference can be slow on first load.
		client: &http.Client{Timeout: 600 * time.Second},
		log:    log.With("provider", ProviderOllama, "model", model),
	}
}

func (c *OllamaClient) Provider() Provider { return ProviderOllama }
func (c *OllamaClient) Model() string      { return c.model }

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Complete sends a non-streaming /api/chat request.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:    c.model,
		Messages: req.Messages,
		Options:  &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug("sending chat request", "host", c.baseURL, "bytes", len(body))
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderError, resp.StatusCode, string(respBody[:min(500, len(respBody))]))
	}

	var or ollamaResponse
	if err := json.Unmarshal(respBody, &or); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if or.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderError, or.Error)
	}
	if or.Message.Content == "" {
		return nil, fmt.Errorf("%w: no content in response", ErrInvalidResponse)
	}

	c.log.Debug("received chat response",
		"done_reason", or.DoneReason, "prompt_tokens", or.PromptEvalCount, "completion_tokens", or.EvalCount)

	return &Response{
		Content: or.Message.Content,
		Model:   c.model,
	}, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Model   string `json:"model"`
		Details struct {
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

// ListModels returns the models pulled into the Ollama instance.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch models failed: status %d: %s", resp.StatusCode, string(body[:min(200, len(body))]))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		id := m.Name
		if id == "" {
			id = m.Model
		}
		name := id
		if m.Details.ParameterSize != "" {
			name = fmt.Sprintf("%s (%s)", id, m.Details.ParameterSize)
		}
		models = append(models, ModelInfo{ID: id, Name: name, Provider: ProviderOllama})
	}
	return models, nil
}

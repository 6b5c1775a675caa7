// Package openai provides a chat model for OpenAI-compatible
// /chat/completions endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"mitey/internal/domain"
)

var _ domain.ChatModel = (*ChatModel)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 2 * time.Minute
)

type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type ChatModel struct {
	client *http.Client
	apiKey string
	cfg    Config
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message domain.Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewChatModel reads the API key from cfg.APIKeyEnv when it is set.
func NewChatModel(cfg Config) (*ChatModel, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ChatModel{client: &http.Client{Timeout: cfg.Timeout}, apiKey: key, cfg: cfg}, nil
}

func (m *ChatModel) Name() string { return "openai/" + m.cfg.Model }

func (m *ChatModel) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       m.cfg.Model,
		Messages:    messages,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var out chatResponse
	decodeErr := json.Unmarshal(payload, &out)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != nil {
			return "", fmt.Errorf("openai chat failed: %s: %s", resp.Status, out.Error.Message)
		}
		return "", fmt.Errorf("openai chat failed: %s", resp.Status)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai chat returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

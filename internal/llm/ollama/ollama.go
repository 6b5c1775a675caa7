// Package ollama provides a chat model backed by a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mitey/internal/domain"
)

var _ domain.ChatModel = (*ChatModel)(nil)

const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	DefaultModel   = "qwen2.5-coder:7b"
	DefaultTimeout = 5 * time.Minute
	DefaultNumCtx  = 8192
)

// Config holds configuration for the Ollama chat model. Temperature is sent
// even when zero so replies stay deterministic.
type Config struct {
	BaseURL       string
	Model         string
	Temperature   float64
	NumCtx        int
	RepeatPenalty float64
	Timeout       time.Duration
}

type ChatModel struct {
	client *http.Client
	cfg    Config
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  options          `json:"options"`
}

type options struct {
	Temperature   float64 `json:"temperature"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

type chatResponse struct {
	Message domain.Message `json:"message"`
	Done    bool           `json:"done"`
	Error   string         `json:"error,omitempty"`
}

func NewChatModel(cfg Config) *ChatModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.NumCtx == 0 {
		cfg.NumCtx = DefaultNumCtx
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ChatModel{client: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}
}

func (m *ChatModel) Name() string { return "ollama/" + m.cfg.Model }

// Complete sends the conversation to /api/chat and returns the assistant reply.
func (m *ChatModel) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    m.cfg.Model,
		Messages: messages,
		Options: options{
			Temperature:   m.cfg.Temperature,
			NumCtx:        m.cfg.NumCtx,
			RepeatPenalty: m.cfg.RepeatPenalty,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Message.Content, nil
}

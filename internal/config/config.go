package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"mitey/internal/domain"
	"mitey/internal/log"
)

const (
	DefaultOllamaURL  = "http://127.0.0.1:11434"
	DefaultEmbedModel = "nomic-embed-text"
	DefaultChatModel  = "qwen2.5-coder:7b"
	DefaultIndexDir   = "./local_index_data"
	FileName          = "mitey.yaml"
)

// OllamaEmbedderConfig holds configuration for the Ollama embedder.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`
}

type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                 `yaml:"type" toml:"type"`
	BatchSize int                    `yaml:"batch_size" toml:"batch_size"`
	Ollama    *OllamaEmbedderConfig  `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
	OpenAI    *OpenAIEmbedderConfig  `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Hashing   *HashingEmbedderConfig `yaml:"hashing,omitempty" toml:"hashing,omitempty"`
}

type OllamaChatConfig struct {
	BaseURL       string  `yaml:"base_url" toml:"base_url"`
	Model         string  `yaml:"model" toml:"model"`
	Temperature   float64 `yaml:"temperature" toml:"temperature"`
	NumCtx        int     `yaml:"num_ctx" toml:"num_ctx"`
	RepeatPenalty float64 `yaml:"repeat_penalty" toml:"repeat_penalty"`
	TimeoutSecs   int     `yaml:"timeout_secs" toml:"timeout_secs"`
}

type OpenAIChatConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	Model       string  `yaml:"model" toml:"model"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs"`
}

// ChatConfig selects the chat model and the assistant persona.
type ChatConfig struct {
	Type    string            `yaml:"type" toml:"type"`
	Persona string            `yaml:"persona,omitempty" toml:"persona,omitempty"`
	Ollama  *OllamaChatConfig `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
	OpenAI  *OpenAIChatConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks. Sizes are
// in characters.
type ChunkerConfig struct {
	Type    string `yaml:"type" toml:"type"`
	Size    int    `yaml:"size" toml:"size"`
	Overlap int    `yaml:"overlap" toml:"overlap"`
}

// ScannerConfig says which files make up the corpus.
type ScannerConfig struct {
	ProjectRoot string   `yaml:"project_root" toml:"project_root"`
	SourceDir   string   `yaml:"source_dir" toml:"source_dir"`
	Extensions  []string `yaml:"extensions" toml:"extensions"`
	IgnoreDirs  []string `yaml:"ignore_dirs" toml:"ignore_dirs"`
	Concurrency int      `yaml:"concurrency" toml:"concurrency"`
}

type RetrievalConfig struct {
	K int `yaml:"k" toml:"k"`
}

// VectorStoreConfig selects and configures the vector store implementation.
// Path is the directory that holds the index.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" toml:"type"`
	Path   string        `yaml:"path" toml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host             string `yaml:"host" toml:"host"`
	Port             int    `yaml:"port" toml:"port"`
	APIKey           string `yaml:"api_key" toml:"api_key"`
	UseTLS           bool   `yaml:"use_tls" toml:"use_tls"`
	CollectionPrefix string `yaml:"collection_prefix" toml:"collection_prefix"`
}

// HistoryConfig bounds the history replayed to the model. Zero MaxTokens
// replays every turn.
type HistoryConfig struct {
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
}

// SummarizerConfig selects and configures the summarizer that folds old
// turns when the history budget is exceeded.
type SummarizerConfig struct {
	Type         string `yaml:"type" toml:"type"`
	MaxSentences int    `yaml:"max_sentences" toml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Chat        ChatConfig        `yaml:"chat" toml:"chat"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	Scanner     ScannerConfig     `yaml:"scanner" toml:"scanner"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	History     HistoryConfig     `yaml:"history" toml:"history"`
	Summarizer  SummarizerConfig  `yaml:"summarizer" toml:"summarizer"`
	Log         log.Config        `yaml:"log" toml:"log"`
}

// Load reads a config from a specified path. Files ending in .toml are
// parsed as TOML, anything else as YAML. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./mitey.yaml first, then ~/.config/mitey/config.yaml.
// If neither exists, it writes defaults to ~/.config/mitey/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	if _, err := os.Stat(FileName); err == nil {
		cfg, err := Load(FileName)
		return cfg, FileName, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...))
		}
	}
	check(slices.Contains([]string{"ollama", "openai", "hashing"}, c.Embedder.Type), "unknown embedder type %q", c.Embedder.Type)
	check(slices.Contains([]string{"ollama", "openai"}, c.Chat.Type), "unknown chat type %q", c.Chat.Type)
	check(slices.Contains([]string{"fixed", "recursive"}, c.Chunker.Type), "unknown chunker type %q", c.Chunker.Type)
	check(slices.Contains([]string{"sqlite", "qdrant", "memory"}, c.VectorStore.Type), "unknown vector store type %q", c.VectorStore.Type)
	check(c.Chunker.Size > 0, "chunk size must be positive")
	check(c.Chunker.Overlap >= 0 && c.Chunker.Overlap < c.Chunker.Size, "chunk overlap %d must be in [0, %d)", c.Chunker.Overlap, c.Chunker.Size)
	check(c.Retrieval.K >= 1, "retrieval k must be at least 1")
	check(c.History.MaxTokens >= 0, "history max_tokens must not be negative")
	for _, ext := range c.Scanner.Extensions {
		check(strings.HasPrefix(ext, "."), "extension %q must start with a dot", ext)
	}
	return errors.Join(errs...)
}

// Timeout converts a seconds field, treating zero as unset.
func Timeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mitey", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "ollama"},
		Chat:        ChatConfig{Type: "ollama"},
		Chunker:     ChunkerConfig{Type: "recursive", Size: 800, Overlap: 100},
		VectorStore: VectorStoreConfig{Type: "sqlite", Path: DefaultIndexDir},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 4},
		Log:         log.DefaultConfig(),
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	switch cfg.Embedder.Type {
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = DefaultOllamaURL
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = DefaultEmbedModel
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 60
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}

	if cfg.Chat.Type == "" {
		cfg.Chat.Type = "ollama"
	}
	switch cfg.Chat.Type {
	case "ollama":
		if cfg.Chat.Ollama == nil {
			cfg.Chat.Ollama = &OllamaChatConfig{}
		}
		if cfg.Chat.Ollama.BaseURL == "" {
			cfg.Chat.Ollama.BaseURL = DefaultOllamaURL
		}
		if cfg.Chat.Ollama.Model == "" {
			cfg.Chat.Ollama.Model = DefaultChatModel
		}
		if cfg.Chat.Ollama.NumCtx == 0 {
			cfg.Chat.Ollama.NumCtx = 8192
		}
		if cfg.Chat.Ollama.RepeatPenalty == 0 {
			cfg.Chat.Ollama.RepeatPenalty = 1.1
		}
		if cfg.Chat.Ollama.TimeoutSecs == 0 {
			cfg.Chat.Ollama.TimeoutSecs = 300
		}
	case "openai":
		if cfg.Chat.OpenAI == nil {
			cfg.Chat.OpenAI = &OpenAIChatConfig{}
		}
		if cfg.Chat.OpenAI.BaseURL == "" {
			cfg.Chat.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Chat.OpenAI.APIKeyEnv == "" {
			cfg.Chat.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Chat.OpenAI.Model == "" {
			cfg.Chat.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Chat.OpenAI.TimeoutSecs == 0 {
			cfg.Chat.OpenAI.TimeoutSecs = 120
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 800
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 100
		}
	}

	if cfg.Scanner.ProjectRoot == "" {
		cfg.Scanner.ProjectRoot = "."
	}
	if cfg.Scanner.SourceDir == "" {
		cfg.Scanner.SourceDir = "."
	}
	if len(cfg.Scanner.Extensions) == 0 {
		cfg.Scanner.Extensions = []string{".tsx", ".ts", ".js", ".jsx", ".md"}
	}
	if len(cfg.Scanner.IgnoreDirs) == 0 {
		cfg.Scanner.IgnoreDirs = []string{".git", "node_modules"}
	}

	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 6
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = DefaultIndexDir
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Host == "" {
			cfg.VectorStore.Qdrant.Host = "localhost"
		}
		if cfg.VectorStore.Qdrant.Port == 0 {
			cfg.VectorStore.Qdrant.Port = 6334
		}
		if cfg.VectorStore.Qdrant.CollectionPrefix == "" {
			cfg.VectorStore.Qdrant.CollectionPrefix = "mitey"
		}
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 4
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
}

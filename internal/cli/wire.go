package cli

import (
	"fmt"

	"mitey/internal/chunker"
	"mitey/internal/config"
	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/embedding/hashing"
	ollamaembed "mitey/internal/embedding/ollama"
	openaiembed "mitey/internal/embedding/openai"
	ollamachat "mitey/internal/llm/ollama"
	openaichat "mitey/internal/llm/openai"
	"mitey/internal/log"
	"mitey/internal/retriever"
	"mitey/internal/scanner"
	"mitey/internal/service"
	"mitey/internal/summarizer"
	"mitey/internal/vectorstore"
	"mitey/internal/vectorstore/memory"
	"mitey/internal/vectorstore/qdrant"
	"mitey/internal/vectorstore/sqlite"
)

// app is everything a command needs, built from one config.
type app struct {
	svc     *service.RAGService
	scanner *scanner.Scanner
	store   vectorstore.Storage
}

func (a *app) Close() error { return a.store.Close() }

func newApp(cfg *config.AppConfig) (*app, error) {
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	model, err := newChatModel(cfg.Chat)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker.Type, chunker.Options{Size: cfg.Chunker.Size, Overlap: cfg.Chunker.Overlap})
	if err != nil {
		return nil, err
	}
	store, err := newStorage(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	sc := scanner.New(scanner.Options{
		ProjectRoot: cfg.Scanner.ProjectRoot,
		SourceDir:   cfg.Scanner.SourceDir,
		Extensions:  cfg.Scanner.Extensions,
		IgnoreDirs:  cfg.Scanner.IgnoreDirs,
		Concurrency: cfg.Scanner.Concurrency,
	}, ch)
	svc := service.NewRAGService(service.Dependencies{
		Scanner:   sc,
		Embedder:  emb,
		Store:     store,
		Retriever: retriever.New(retriever.Options{ProjectRoot: cfg.Scanner.ProjectRoot, K: cfg.Retrieval.K}),
		Assembler: newAssembler(cfg),
		Model:     model,
	}, service.Options{BatchSize: cfg.Embedder.BatchSize})
	return &app{svc: svc, scanner: sc, store: store}, nil
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "ollama":
		return ollamaembed.NewEmbedder(ollamaembed.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: config.Timeout(cfg.Ollama.TimeoutSecs),
		}), nil
	case "openai":
		client, err := openaiembed.NewClient(openaiembed.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    config.Timeout(cfg.OpenAI.TimeoutSecs),
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "hashing":
		return hashing.NewEmbedder(cfg.Hashing.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newChatModel(cfg config.ChatConfig) (domain.ChatModel, error) {
	switch cfg.Type {
	case "ollama":
		return ollamachat.NewChatModel(ollamachat.Config{
			BaseURL:       cfg.Ollama.BaseURL,
			Model:         cfg.Ollama.Model,
			Temperature:   cfg.Ollama.Temperature,
			NumCtx:        cfg.Ollama.NumCtx,
			RepeatPenalty: cfg.Ollama.RepeatPenalty,
			Timeout:       config.Timeout(cfg.Ollama.TimeoutSecs),
		}), nil
	case "openai":
		m, err := openaichat.NewChatModel(openaichat.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     config.Timeout(cfg.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai chat init failed: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown chat model: %s", cfg.Type)
	}
}

func newStorage(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.NewStorage(cfg.Path), nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		st, err := qdrant.NewStorage(qdrant.Config{
			Host:             cfg.Qdrant.Host,
			Port:             cfg.Qdrant.Port,
			APIKey:           cfg.Qdrant.APIKey,
			UseTLS:           cfg.Qdrant.UseTLS,
			CollectionPrefix: cfg.Qdrant.CollectionPrefix,
			Dir:              cfg.Path,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// newAssembler only sets up token counting when a history budget is set.
func newAssembler(cfg *config.AppConfig) *conversation.Assembler {
	opts := conversation.Options{
		Persona:          cfg.Chat.Persona,
		MaxHistoryTokens: cfg.History.MaxTokens,
		SummarySentences: cfg.Summarizer.MaxSentences,
	}
	if opts.MaxHistoryTokens <= 0 {
		return conversation.NewAssembler(opts, nil, nil)
	}
	var counter conversation.TokenCounter
	tc, err := conversation.NewTiktokenCounter()
	if err != nil {
		log.GetLogger().Warn("tiktoken unavailable, approximating token counts", "error", err)
		counter = conversation.ApproxCounter{}
	} else {
		counter = tc
	}
	return conversation.NewAssembler(opts, counter, summarizer.NewFrequencySummarizer())
}

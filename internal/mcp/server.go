package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/log"
	"mitey/internal/service"
)

const Version = "0.1.0"

// Assistant is the part of the RAG service the tools call.
type Assistant interface {
	Ask(ctx context.Context, history *conversation.History, query string) (*service.Answer, error)
	Retrieve(ctx context.Context, query string) (domain.RetrievedContext, error)
	Index(ctx context.Context) (*service.IndexSummary, error)
}

// Server is the MCP server for mitey.
type Server struct {
	assistant Assistant
	server    *mcp.Server
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*conversation.History
}

func NewServer(assistant Assistant) (*Server, error) {
	if assistant == nil {
		return nil, ErrMissingService
	}
	s := &Server{
		assistant: assistant,
		server:    mcp.NewServer(&mcp.Implementation{Name: "mitey", Version: Version}, nil),
		logger:    log.NewModuleLogger("mcp", "server"),
		sessions:  make(map[string]*conversation.History),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// history returns the named session's history. An empty name gets a
// throwaway history so the call sees no earlier turns.
func (s *Server) history(session string) *conversation.History {
	if session == "" {
		return conversation.NewHistory()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[session]
	if !ok {
		h = conversation.NewHistory()
		s.sessions[session] = h
	}
	return h
}

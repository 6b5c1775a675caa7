package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question about the project"`
	Session  string `json:"session,omitempty" jsonschema:"optional conversation id; questions with the same id share history"`
}

type AskOutput struct {
	Answer  string   `json:"answer"`
	Mode    string   `json:"mode"`
	Sources []string `json:"sources,omitempty"`
}

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query string `json:"query" jsonschema:"the question or file name to fetch context for"`
}

type RetrieveOutput struct {
	Context string   `json:"context"`
	Mode    string   `json:"mode"`
	Sources []string `json:"sources,omitempty"`
}

type ScanInput struct{}

type ScanOutput struct {
	BuildID   string `json:"build_id"`
	Files     int    `json:"files"`
	Chunks    int    `json:"chunks"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question about the indexed project using retrieved file context",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Return the context block the assistant would use for a question, without calling the model",
	}, s.handleRetrieve)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scan",
		Description: "Rebuild the project index from the source tree",
	}, s.handleScan)
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	q := strings.TrimSpace(input.Question)
	if q == "" {
		return nil, AskOutput{}, errors.New("question is required")
	}
	ans, err := s.assistant.Ask(ctx, s.history(input.Session), q)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		Answer:  ans.Reply,
		Mode:    string(ans.Context.Mode),
		Sources: ans.Context.Sources,
	}, nil
}

func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	q := strings.TrimSpace(input.Query)
	if q == "" {
		return nil, RetrieveOutput{}, errors.New("query is required")
	}
	rc, err := s.assistant.Retrieve(ctx, q)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	return nil, RetrieveOutput{Context: rc.Text, Mode: string(rc.Mode), Sources: rc.Sources}, nil
}

func (s *Server) handleScan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ScanInput,
) (*mcp.CallToolResult, ScanOutput, error) {
	sum, err := s.assistant.Index(ctx)
	if err != nil {
		return nil, ScanOutput{}, err
	}
	return nil, ScanOutput{
		BuildID:   sum.BuildID,
		Files:     sum.Files,
		Chunks:    sum.Chunks,
		ElapsedMS: sum.Elapsed.Milliseconds(),
	}, nil
}

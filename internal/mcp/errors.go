// Package mcp exposes the assistant over the Model Context Protocol so other
// agents can ask questions about the indexed project.
package mcp

import "errors"

// ErrMissingService is returned when no assistant service is provided.
var ErrMissingService = errors.New("mcp: assistant service is required")

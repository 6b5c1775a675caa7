package cli

import (
	"github.com/spf13/cobra"

	"mitey/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant over MCP",
	Long: `Starts a Model Context Protocol server on stdio with the tools ask,
retrieve and scan, for use by MCP-compatible clients.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	RootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.svc)
	if err != nil {
		return err
	}
	return server.Run(cmd.Context())
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index the project",
	Long: `Walks the source directory, chunks every allow-listed file, embeds the
chunks and replaces the persisted index. The previous index is kept if any
step fails.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	RootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.svc.Index(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d files into %d chunks in %s\n", sum.Files, sum.Chunks, sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Build: %s\n", sum.BuildID)
	return nil
}

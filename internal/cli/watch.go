package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mitey/internal/log"
	"mitey/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index up to date",
	Long: `Builds the index, then rebuilds it whenever an allow-listed file under the
source directory changes. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "Quiet period before a rebuild")
	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	logger := log.NewModuleLogger("cli", "watch")
	if _, err := a.svc.Index(ctx); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	_, srcDir, err := a.scanner.Dirs()
	if err != nil {
		return err
	}
	w, err := watcher.New(watcher.Config{Root: srcDir, Debounce: watchDebounce}, a.scanner, func(changed []string) {
		logger.Info("rebuilding index", "changed", len(changed))
		if _, err := a.svc.Index(ctx); err != nil {
			logger.Error("rebuild failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, press Ctrl+C to stop\n", srcDir)
	<-ctx.Done()
	return nil
}

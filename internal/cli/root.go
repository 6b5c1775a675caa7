// Package cli implements the mitey commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mitey/internal/config"
	"mitey/internal/domain"
	"mitey/internal/log"
)

var (
	cfgPath string
	verbose bool

	appCfg *config.AppConfig
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mitey",
	Short: "Ask questions about a local project",
	Long: `Mitey indexes the source files of a project into a local vector index and
answers questions about them with a chat model, citing the files it used.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file, YAML or TOML (default: ./mitey.yaml or ~/.config/mitey/config.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer log.Close()
	err := RootCmd.ExecuteContext(ctx)
	if err != nil {
		report(RootCmd.ErrOrStderr(), err)
	}
	return err
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	switch {
	case errors.Is(err, domain.ErrIndexNotFound), errors.Is(err, domain.ErrIndexCorrupt):
		fmt.Fprintln(w, "hint: run `mitey scan` first")
	case errors.Is(err, domain.ErrIndexIncompatible):
		fmt.Fprintln(w, "hint: the embedder changed, run `mitey scan` to rebuild the index")
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrModelUnavailable):
		fmt.Fprintln(w, "hint: check that the model server is running and the model is pulled")
	}
}

func setup(_ *cobra.Command, _ []string) error {
	var err error
	if cfgPath == "" {
		appCfg, _, err = config.LoadDefault()
	} else {
		appCfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return err
	}
	if verbose {
		appCfg.Log.Level = "debug"
	}
	return log.Init(appCfg.Log)
}

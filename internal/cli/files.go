package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the indexed files",
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

func init() {
	RootCmd.AddCommand(filesCmd)
}

func runFiles(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	manifest, err := a.svc.Manifest(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, src := range manifest {
		fmt.Fprintln(out, src)
	}
	return nil
}

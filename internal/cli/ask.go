package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mitey/internal/conversation"
)

var askReindex bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question about the project",
	Long: `Answers a single question. A question that names an indexed file (for
example "what does app.ts do") is answered from that whole file; anything else
uses the closest indexed chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askReindex, "reindex", false, "Rebuild the index before asking")
	RootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if askReindex {
		if _, err := a.svc.Index(cmd.Context()); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
	}
	ans, err := a.svc.Ask(cmd.Context(), conversation.NewHistory(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ans.Reply)
	if len(ans.Context.Sources) > 0 {
		fmt.Fprintf(out, "\nSources: %s\n", strings.Join(ans.Context.Sources, ", "))
	}
	return nil
}

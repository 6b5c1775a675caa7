package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/log"
	"mitey/internal/service"
	"mitey/internal/tui"
)

const prompt = "mitey > "

var (
	chatPlain   bool
	chatReindex bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Starts a conversation about the project. Earlier questions and answers are
replayed to the model so follow-ups work. Type exit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Use a plain line prompt instead of the terminal UI")
	chatCmd.Flags().BoolVar(&chatReindex, "reindex", false, "Rebuild the index before the session starts")
	RootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if !chatPlain && strings.EqualFold(appCfg.Log.Output, "stderr") {
		// The terminal UI owns the screen.
		quiet := appCfg.Log
		quiet.Output = "discard"
		if err := log.Init(quiet); err != nil {
			return err
		}
	}
	a, err := newApp(appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if chatReindex {
		if _, err := a.svc.Index(ctx); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
	}
	history := conversation.NewHistory()
	if chatPlain {
		return chatLoop(ctx, a.svc, history, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	m := tui.New(ctx, a.svc, history, indexSummary(ctx, a.svc))
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// chatLoop reads one question per line until exit or end of input. Failed
// questions are reported and the session continues.
func chatLoop(ctx context.Context, svc tui.ChatPort, history *conversation.History, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		q := strings.TrimSpace(sc.Text())
		if q == "" {
			continue
		}
		if strings.EqualFold(q, "exit") {
			return nil
		}
		ans, err := svc.Ask(ctx, history, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			if errors.Is(err, domain.ErrIndexNotFound) {
				fmt.Fprintln(out, "hint: run `mitey scan` to build the index")
			}
			continue
		}
		fmt.Fprintln(out, ans.Reply)
	}
}

func indexSummary(ctx context.Context, svc *service.RAGService) string {
	manifest, err := svc.Manifest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return "No index yet. Run mitey scan first."
		}
		return "Index unavailable: " + err.Error()
	}
	return fmt.Sprintf("%d files indexed", len(manifest))
}

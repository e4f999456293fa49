package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/spf13/cobra"
)

const (
	helpCommand    = "/help"
	restartCommand = "/restart"
	quitCommand    = "/quit"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BE9FD")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E9E9F4"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4")).
			Italic(true)
)

func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask about university rankings from the terminal",
		Long: `Answer one question, or start an interactive session when no question is given.

In a session, type /help for spelling guidance, /restart to forget the
conversation and /quit to leave.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().String("index", "", "Vector index to answer from (overrides UNIRANK_INDEX_NAME)")
	cmd.Flags().String("prompt-version", "", "Prompt template version (overrides UNIRANK_PROMPT_VERSION)")
	cmd.Flags().Int("max-rank", 0, "Only retrieve universities ranked at or above this position (0 = no cut-off)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.verifyIndex(ctx); err != nil {
		return err
	}

	p, err := a.pipeline()
	if err != nil {
		return err
	}

	history := domain.NewHistory(a.cfg.HistoryTurns)
	session := &askSession{
		answer:  p.orchestrator.AnswerQuery,
		history: history,
		help:    p.catalog.Help,
		reset:   p.catalog.Reset,
	}

	if len(args) == 1 {
		session.ask(ctx, cmd.OutOrStdout(), args[0])
		return nil
	}
	return session.loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// askSession is one terminal conversation with its own history.
type askSession struct {
	answer  func(ctx context.Context, query string, history *domain.History) string
	history *domain.History
	help    string
	reset   string
}

func (s *askSession) loop(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, noticeStyle.Render(s.reset))
	fmt.Fprintln(out, noticeStyle.Render("Type /help for guidance, /restart to start over, /quit to leave."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case quitCommand:
			return nil
		case helpCommand:
			fmt.Fprintln(out, noticeStyle.Render(s.help))
		case restartCommand:
			s.history.Reset()
			fmt.Fprintln(out, noticeStyle.Render(s.reset))
		default:
			s.ask(ctx, out, line)
		}
	}
}

func (s *askSession) ask(ctx context.Context, out io.Writer, query string) {
	fmt.Fprintln(out, answerStyle.Render(s.answer(ctx, query, s.history)))
	fmt.Fprintln(out)
}

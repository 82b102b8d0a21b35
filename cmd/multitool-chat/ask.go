package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dshills/multitool-chat/assistant"
	"github.com/dshills/multitool-chat/graph/model"
	"github.com/dshills/multitool-chat/logger"
)

const askLongDesc string = `Answer one question and print the candidate answer.

There is no review step: the answer is printed and nothing is kept. The tools
consulted are listed on stderr. Output is rendered as markdown when stdout is
a terminal.

Examples:
  multitool-chat ask "Who proposed the transformer architecture?"
  multitool-chat ask --plain "latest news on fusion energy" > answer.md`

const askShortDesc string = "Answer a single question without review"

type askCommander struct {
	root  *rootCommander
	plain bool
}

func newAskCmd(root *rootCommander) *cobra.Command {
	cmder := &askCommander{root: root}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print raw markdown even on a terminal")

	return cmd
}

func (c *askCommander) run(ctx context.Context, out, errOut io.Writer, question string) error {
	cfg, err := loadConfig(c.root.configPath, c.root.debug)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.NewLogger(errOut, cfg.Debug)
	defer func() { _ = log.Sync() }()

	chatModel, err := newChatModel(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, chatModel, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	res, err := a.orchestrator.Answer(ctx, []model.Message{{Role: model.RoleUser, Content: question}})
	if err != nil {
		log.Error("answer failed", zap.Error(err))
		return err
	}

	return printAnswer(out, errOut, res, !c.plain && isTerminal(out))
}

func printAnswer(out, errOut io.Writer, res assistant.Result, render bool) error {
	if len(res.ToolCalls) > 0 {
		fmt.Fprintf(errOut, "tools: %s\n", strings.Join(res.ToolCalls, ", "))
	}

	text := res.Answer
	if render {
		rendered, err := glamour.Render(text, "auto")
		if err == nil {
			text = rendered
		}
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(out, text)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Command multitool-chat is a terminal chatbot that consults Wikipedia,
// arXiv and web search, and holds every answer for human review before it
// joins the conversation.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the exit status. A failing
// command is logged at error level on stderr.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		log := logger.NewLogger(stderr, false)
		log.Error("multitool-chat failed", zap.Error(err))
		_ = log.Sync()
		return 1
	}
	return 0
}

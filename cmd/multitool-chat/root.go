package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/chat"
	"github.com/dshills/multitool-chat/logger"
	"github.com/dshills/multitool-chat/tui"
)

const rootLongDesc string = `Chat with a model that can search Wikipedia, arXiv and the web.

Every answer is held for review: edit it, approve it with ctrl+s to add it
to the conversation, or reject it with ctrl+r to ask again.

Keys are read from the environment (or a .env file):
  GROQ_API_KEY      model key for the default provider
  TAVILY_API_KEY    web search key

Examples:
  multitool-chat
  multitool-chat --config chat.yaml --debug
  multitool-chat ask "What is retrieval-augmented generation?"`

const rootShortDesc string = "Multi-tool chatbot with human review"

type rootCommander struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "multitool-chat",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.PersistentFlags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newAskCmd(cmder))
	cmd.AddCommand(newServeToolsCmd(cmder))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (c *rootCommander) run(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.configPath, c.debug)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	log, closeLog, err := logger.NewFileLogger(cfg.LogFile, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	chatModel, err := newChatModel(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, chatModel, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	log.Info("multitool-chat starting",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("debug", cfg.Debug),
	)

	session := chat.NewSession(a.orchestrator,
		chat.WithLogger(log),
		chat.WithMetrics(a.metrics),
	)

	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}

	screen := tui.New(session,
		tui.WithContext(cmd.Context()),
		tui.WithEvents(a.events),
		tui.WithRequestTimeout(cfg.RequestTimeout),
		tui.WithGlamourStyle(style),
		tui.WithLogger(log.Named("tui")),
	)

	if _, err := tea.NewProgram(screen, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}

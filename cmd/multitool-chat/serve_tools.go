package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/config"
	"github.com/dshills/multitool-chat/logger"
	"github.com/dshills/multitool-chat/toolserver"
)

const serveToolsLongDesc string = `Serve the lookup tools over the Model Context Protocol on stdio.

Exposes arxiv_search, wikipedia_search and tavily_search to any MCP client.
Only TAVILY_API_KEY is required; no model is called.

Examples:
  multitool-chat serve-tools`

func newServeToolsCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-tools",
		Short: "Serve the lookup tools over MCP stdio",
		Long:  serveToolsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath, root.debug)
			if err != nil {
				return err
			}
			if cfg.TavilyAPIKey == "" {
				return fmt.Errorf("%w: %s is not set", config.ErrMissingAPIKey, config.TavilyKeyEnv)
			}

			// stdout carries the protocol
			log := logger.NewLogger(os.Stderr, cfg.Debug)
			defer func() { _ = log.Sync() }()

			log.Info("serving tools over stdio", zap.String("version", version))
			return toolserver.Serve(cmd.Context(), toolserver.New(newTools(cfg), version, log))
		},
	}
}

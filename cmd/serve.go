package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/compound-rag/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing document
search, database search and document listing tools for AI agents. Every
tool requires a compound_id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(context.Background(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		mcpserver.Version = Version
		log.Info().Str("database", a.db.Path()).Msg("compoundrag MCP server started on stdio")

		return mcpserver.NewServer(a.search, a.database, a.catalog).Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

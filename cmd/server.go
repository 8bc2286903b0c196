package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/ingest"
	"github.com/ziadkadry99/compound-rag/internal/search"
	"github.com/ziadkadry99/compound-rag/internal/server"
	"github.com/ziadkadry99/compound-rag/internal/sqlquery"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API server",
	Long:  `Starts the compoundrag HTTP server with the catalog, document ingestion, document search and database search APIs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}, a.db)

		r := srv.Router()
		catalog.RegisterRoutes(r, a.catalog)
		ingest.RegisterRoutes(r, a.pipeline, cfg.Server.MaxUploadBytes)
		search.RegisterRoutes(r, a.search)
		sqlquery.RegisterRoutes(r, a.database)

		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown")
			}
		}()

		log.Info().
			Str("version", Version).
			Int("port", cfg.Server.Port).
			Str("database", a.db.Path()).
			Str("llm", string(cfg.LLM.Provider)).
			Msg("compoundrag server starting")

		return srv.Start()
	},
}

func init() {
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/config"
	"github.com/ziadkadry99/compound-rag/internal/extract"
	"github.com/ziadkadry99/compound-rag/internal/ingest"
	"github.com/ziadkadry99/compound-rag/internal/progress"
	"github.com/ziadkadry99/compound-rag/internal/walker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Upload every document under a directory into a compound",
	Long: `Walks a directory, uploads every file of an accepted format into the
compound's index and, with --wait, blocks until each one is indexed or
failed. Without --wait the documents stay pending and are indexed the
next time the server starts.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("compound", "", "compound id to ingest into")
	_ = ingestCmd.MarkFlagRequired("compound")
	ingestCmd.Flags().String("department", "", "assign every ingested document to this department")
	ingestCmd.Flags().StringSlice("include", nil, "glob patterns of files to include")
	ingestCmd.Flags().StringSlice("exclude", nil, "glob patterns of files to exclude")
	ingestCmd.Flags().String("duplicate-policy", "", "reject or flag (defaults to ingestion.duplicate_policy)")
	ingestCmd.Flags().Bool("wait", true, "wait until every document is indexed")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	compoundID, _ := cmd.Flags().GetString("compound")
	departmentID, _ := cmd.Flags().GetString("department")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	policy, _ := cmd.Flags().GetString("duplicate-policy")
	wait, _ := cmd.Flags().GetBool("wait")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := walker.Walk(walker.WalkerConfig{
		RootDir:     args[0],
		Include:     include,
		Exclude:     exclude,
		Extensions:  extract.NewDefaultRegistry(cfg.Ingestion.ExtractorURL).Extensions(),
		MaxFileSize: cfg.Ingestion.MaxFileSize,
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No documents of an accepted format found.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.catalog.RequireCompound(ctx, compoundID); err != nil {
		return err
	}

	reporter := progress.NewReporter()
	reporter.Start(len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Ingestion.Workers)
	for _, f := range files {
		g.Go(func() error {
			reporter.Advance(f.RelPath, ingestFile(gctx, a, f, compoundID, departmentID, config.DuplicatePolicy(policy), wait))
			return gctx.Err()
		})
	}
	err = g.Wait()

	summary := reporter.Finish()
	fmt.Printf("Ingested %d of %d documents into %s", summary.Succeeded, summary.Total, compoundID)
	if summary.Failed > 0 {
		fmt.Printf(" (%d failed)", summary.Failed)
	}
	fmt.Println()
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d documents failed", summary.Failed)
	}
	return nil
}

// ingestFile uploads one walked file and, when wait is set, blocks until
// its indexing attempt ends.
func ingestFile(ctx context.Context, a *app, f walker.FileInfo, compoundID, departmentID string, policy config.DuplicatePolicy, wait bool) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	res, err := a.pipeline.Ingest(ctx, ingest.Request{
		CompoundID: compoundID,
		FileName:   filepath.Base(f.Path),
		Title:      strings.TrimSuffix(f.RelPath, filepath.Ext(f.RelPath)),
		Data:       data,
		Policy:     policy,
	})
	if err != nil {
		return err
	}
	doc := res.Document
	if res.Duplicate {
		log.Info().Str("file", f.RelPath).Str("document_id", doc.ID).Msg("duplicate of an existing document")
	}

	if departmentID != "" {
		err := a.catalog.AssignDocument(ctx, compoundID, departmentID, doc.ID)
		if err != nil && !(res.Duplicate && isAlreadyAssigned(err)) {
			return err
		}
	}

	if !wait {
		return nil
	}
	doc, err = a.pipeline.Wait(ctx, compoundID, doc.ID)
	if err != nil {
		return err
	}
	if doc.Status == catalog.StatusFailed {
		return fmt.Errorf("indexing failed: %s", doc.ErrorMessage)
	}
	return nil
}

func isAlreadyAssigned(err error) bool {
	return errors.Is(err, &apperr.Error{Kind: apperr.KindConflict, Code: apperr.CodeAlreadyExists})
}

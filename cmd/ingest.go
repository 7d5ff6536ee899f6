package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var skipIndex bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scrape the configured pages and rebuild the corpus",
		Long: `Fetches every configured URL in order, extracts its text blocks,
and replaces the stored corpus. Unless --skip-index is given (or the index is
disabled) the vector index is rebuilt from the new corpus.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("prepare corpus store: %w", err)
			}
			p, cleanup, err := svc.Pipeline(svc.Config().Index.Enabled && !skipIndex)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := p.Run(cmd.Context())
			logSummary(svc.Logger(), "ingestion finished", summary)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipIndex, "skip-index", false, "save the corpus without rebuilding the vector index")
	return cmd
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from the stored corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			p, cleanup, err := svc.Pipeline(true)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := p.Reindex(cmd.Context())
			logSummary(svc.Logger(), "index rebuilt", summary)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			return nil
		},
	}
}

func logSummary(logger *zap.Logger, msg string, s ingest.Summary) {
	fields := []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Int("attempted", s.Attempted),
		zap.Int("scraped", s.Scraped),
		zap.Int("failed", s.Failed),
		zap.String("corpus_stamp", s.CorpusStamp),
		zap.String("model", s.Model),
	}
	for _, f := range s.Failures {
		logger.Warn("url failed", zap.String("run_id", s.RunID), zap.String("url", f.URL), zap.Error(f.Err))
	}
	logger.Info(msg, fields...)
}

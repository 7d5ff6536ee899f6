// Package cmd defines the kb command line: ingest, index and serve.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/app"
	"github.com/JakeFAU/campus-kb/internal/config"
	"github.com/JakeFAU/campus-kb/internal/logging"
)

type servicesKey struct{}

// openServices loads configuration and opens the backends it names.
func openServices(ctx context.Context, cfgPath string) (*app.Services, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.Open(ctx, cfg, logger)
}

// session owns the services opened for one command invocation.
type session struct {
	svc    *app.Services
	closed bool
}

// close releases the services whether or not the command succeeded.
func (s *session) close() {
	if s.svc == nil || s.closed {
		return
	}
	s.closed = true
	s.svc.Close()
	_ = s.svc.Logger().Sync()
}

func newRootCmd() (*cobra.Command, *session) {
	var cfgFile string
	sess := &session{}
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Campus knowledge base: scrape, index and answer questions.",
		Long: `kb scrapes a fixed list of university pages into a corpus, embeds
them into a vector index, and serves a JSON question-answering endpoint
over the result.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openServices(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			sess.svc = svc
			cmd.SetContext(context.WithValue(cmd.Context(), servicesKey{}, svc))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newIngestCmd(), newIndexCmd(), newServeCmd())
	return cmd, sess
}

func resolveServices(ctx context.Context) (*app.Services, error) {
	svc, ok := ctx.Value(servicesKey{}).(*app.Services)
	if !ok || svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return svc, nil
}

// execute runs root and then closes whatever services it opened.
func execute(ctx context.Context, root *cobra.Command, sess *session) error {
	defer sess.close()
	return root.ExecuteContext(ctx)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root, sess := newRootCmd()
	if err := execute(context.Background(), root, sess); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

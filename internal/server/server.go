// Package server runs the query service process: it accepts connections
// immediately, loads the runtime, and shuts down on SIGINT or SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/api"
	"github.com/JakeFAU/campus-kb/internal/app"
)

const shutdownTimeout = 10 * time.Second

// Run listens on the configured port and serves until ctx is canceled or a
// termination signal arrives. A runtime load failure stops the server and
// is returned.
func Run(ctx context.Context, svc *app.Services) error {
	cfg := svc.Config()
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return Serve(ctx, ln, svc)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, ln net.Listener, svc *app.Services) error {
	cfg := svc.Config()
	logger := svc.Logger()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(api.Config{
		StrictStatus:   cfg.Server.StrictStatus,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger.Named("api"))
	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	rt, err := app.Load(ctx, svc)
	if err != nil {
		shutdown(srv, logger)
		return fmt.Errorf("load runtime: %w", err)
	}
	apiServer.SetRetriever(rt)
	logger.Info("query service ready")

	<-ctx.Done()
	logger.Info("shutdown initiated")
	shutdown(srv, logger)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	default:
		logger.Info("shutdown complete")
		return nil
	}
}

func shutdown(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

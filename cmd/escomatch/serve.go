package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/metrics"
	"github.com/kailas-cloud/escomatch/internal/repository/matchstore"
	chiTransport "github.com/kailas-cloud/escomatch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/escomatch/internal/usecase/health"
	"github.com/kailas-cloud/escomatch/internal/version"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only ops HTTP server",
		Long: "Serves /healthz, /metrics, stored match lookups under /v1/matches and the " +
			"rule integrity report under /v1/dictionary/issues. It never matches postings online.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c.logger.Info("Starting escomatch ops server",
				zap.String("version", version.Version),
				zap.String("commit", version.Commit),
				zap.String("env", c.env),
				zap.Int("http_port", c.cfg.HTTP.Port),
				zap.Strings("db_addrs", c.cfg.Database.Addrs),
			)

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			deps, err := c.openMatcher(ctx, store)
			if err != nil {
				return err
			}
			metrics.RegisterHTTPMetrics()
			issues := deps.matcher.Rules().Validate(deps.tax)
			metrics.DictionaryIssues.Set(float64(len(issues)))

			healthSvc := healthuc.New(healthuc.DefaultProbeTimeout, c.logger).
				Register("database", store.Ping).
				Register("embedding", embeddingProbe(deps.embedder))
			ch, _, err := c.openWarehouse(ctx)
			if err != nil {
				return err
			}
			if ch != nil {
				defer func() { _ = ch.Close() }()
				healthSvc.Register("warehouse", ch.Ping)
			}

			server := chiTransport.NewServer(
				matchstore.New(store), healthSvc, issues, deps.matcher.Version(), c.logger,
			)

			addr := fmt.Sprintf(":%d", c.cfg.HTTP.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      chiTransport.NewRouter(server, c.cfg.HTTP.APIKeys, c.logger),
				ReadTimeout:  time.Duration(c.cfg.HTTP.ReadTimeoutSec) * time.Second,
				WriteTimeout: time.Duration(c.cfg.HTTP.WriteTimeoutSec) * time.Second,
			}
			return serve(ctx, srv, time.Duration(c.cfg.HTTP.ShutdownSec)*time.Second, c.logger)
		},
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/bookkeeper/internal/ingest"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
	"github.com/joseph-ayodele/bookkeeper/internal/server"
)

func newWatchCmd(a *app) *cobra.Command {
	var grpcAddr string
	var drain time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the inbox and process documents as they arrive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if grpcAddr == "" {
				grpcAddr = a.cfg.Server.GRPCAddr
			}

			db, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			proc, err := a.processor(ctx)
			if err != nil {
				a.logger.Error("provider setup failed", "error", err)
				return err
			}

			w := a.cfg.Watch
			r := a.cfg.Retry
			mon, err := ingest.NewMonitor(ingest.MonitorConfig{
				InboxDir:     w.InboxDir,
				ProcessedDir: w.ProcessedDir,
				ReviewDir:    w.ReviewDir,
				Debounce:     w.Debounce,
				InitialScan:  w.InitialScan,
				QueueSize:    w.QueueSize,
				JobTimeout:   time.Duration(r.MaxAttempts)*a.cfg.LLM.Timeout + r.MaxDelay*time.Duration(r.MaxAttempts),
				Retry: ingest.RetryPolicy{
					MaxAttempts:    r.MaxAttempts,
					BaseDelay:      r.BaseDelay,
					MaxDelay:       r.MaxDelay,
					RetryRateLimit: r.RetryRateLimit,
					RetryNetwork:   r.RetryNetwork,
				},
			}, proc, repository.NewTransactionRepository(db, a.logger), a.logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if err := mon.Start(gctx); err != nil {
				return err
			}

			if grpcAddr != "" {
				hs := server.NewHealthServer(grpcAddr, a.logger)
				g.Go(func() error { return hs.Serve(gctx) })
				g.Go(func() error {
					hs.Track(gctx, func(ctx context.Context) bool {
						return mon.Running() && db.HealthCheck(ctx, time.Second) == nil
					}, 5*time.Second)
					return nil
				})
			}

			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down; finishing in-flight document", "drain", drain)
				sctx, cancel := context.WithTimeout(context.Background(), drain)
				defer cancel()
				_ = mon.Stop(sctx)
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "serve gRPC health on this address (overrides GRPC_ADDR)")
	cmd.Flags().DurationVar(&drain, "drain", 2*time.Minute, "how long to wait for queued documents on shutdown")
	return cmd
}

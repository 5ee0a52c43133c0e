package cmd

import (
	"DispatchEngine/config"
	"DispatchEngine/container"
	"DispatchEngine/log"
	"DispatchEngine/metrics"
	"DispatchEngine/pool"
	"DispatchEngine/server"
	"context"
	"errors"
	"fmt"
	"github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCommand(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC job service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cobra.CheckErr(config.BindFlags(v, cmd.Flags()))
	return cmd
}

// runServe blocks until ctx is done, then stops the servers and drains the
// pool before returning.
func runServe(ctx context.Context, cfg *config.Config) (err error) {
	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	defer func() {
		_ = log.L().Sync()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var dockerClient *client.Client
	if cfg.Docker.Enabled {
		dockerClient, err = container.NewClient()
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, dockerClient.Close())
		}()
		if cfg.Docker.BuildContext != "" {
			if err := container.BuildImage(ctx, dockerClient, cfg.Docker.BuildContext, cfg.Docker.Image); err != nil {
				return err
			}
		}
	}

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", cfg.Server.ListenAddress, err)
	}

	workerPool, err := pool.NewPool(cfg.Pool.Workers, append(cfg.PoolOptions(), pool.WithObserver(collector))...)
	if err != nil {
		_ = listener.Close()
		return err
	}
	log.L().Info("Started worker pool", zap.Int("workers", cfg.Pool.Workers), zap.String("ordering", cfg.Pool.Ordering))

	srv := server.NewServer(workerPool, dockerClient, cfg.Docker.DefaultTimeout, server.WithRetention(cfg.Server.Retention))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Serve(groupCtx, listener)
	})
	if cfg.Metrics.Enabled {
		serveMetrics(groupCtx, group, cfg.Metrics, registry)
	}

	err = group.Wait()

	log.L().Info("Draining worker pool")
	workerPool.Shutdown()
	stats := workerPool.Stats()
	log.L().Info("Worker pool drained", zap.Uint64("submitted", stats.Submitted), zap.Uint64("completed", stats.Completed), zap.Uint64("faulted", stats.Faulted))
	return err
}

func serveMetrics(ctx context.Context, group *errgroup.Group, cfg config.Metrics, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(gatherer))
	metricsServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group.Go(func() error {
		log.L().Info("Starting metrics server", zap.String("listenAddress", cfg.ListenAddress), zap.String("path", cfg.Path))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
}

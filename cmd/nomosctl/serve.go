package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/misaret/nomos-go/internal/logging"
	"github.com/misaret/nomos-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory Nomos server for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			metricsAddr, _ := cmd.Flags().GetString("metrics")
			sweep, _ := cmd.Flags().GetDuration("sweep")
			level, _ := cmd.Flags().GetString("log-level")
			logger := logging.New(logging.ParseLevel(level))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.Start(listen, server.WithLogger(logger), server.WithSweepInterval(sweep))
			if err != nil {
				return fmt.Errorf("start server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", srv.Addr())

			var metricsSrv *http.Server
			if metricsAddr != "" {
				metricsSrv = newMetricsServer(metricsAddr, srv)
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "err", err)
					}
				}()
			}

			<-ctx.Done()
			logger.Info("shutting down")
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return srv.Shutdown()
		},
	}
	cmd.Flags().String("listen", "127.0.0.1:14301", "Address to accept storage connections on")
	cmd.Flags().String("metrics", "", "Address for the Prometheus /metrics endpoint; empty disables it")
	cmd.Flags().Duration("sweep", time.Minute, "Interval between expired entry sweeps")
	return cmd
}

func newMetricsServer(addr string, srv *server.Server) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nomos_server_entries",
			Help: "Entries held by the in-memory server, expired ones included until swept.",
		}, func() float64 {
			return float64(srv.Memory().Len())
		}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

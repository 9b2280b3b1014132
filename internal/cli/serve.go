package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/flowgraph/internal/audit"
	"github.com/ppiankov/flowgraph/internal/enforce"
	"github.com/ppiankov/flowgraph/internal/flowgraph"
	"github.com/ppiankov/flowgraph/internal/metrics"
	"github.com/ppiankov/flowgraph/internal/monitor"
	"github.com/ppiankov/flowgraph/internal/policy"
	"github.com/ppiankov/flowgraph/internal/server"
)

var (
	servePolicy      string
	serveAuditLog    string
	serveMetricsAddr string
	serveDryRun      bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Path to policy YAML (default ~/.flowgraph/policy.yaml)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Enforcement journal (.jsonl, or .db/.sqlite for SQLite)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Expose Prometheus /metrics on this address")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Log and alert on violations without killing processes")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow graph service",
	Long: "Runs the flow accounting engine behind a gRPC endpoint, ticks the decaying\n" +
		"window on the policy interval, and hot-reloads the policy file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, hash, err := policy.LoadConfigWithHash(servePolicy)
	if err != nil {
		return err
	}

	m := metrics.New()

	var sink audit.Sink
	if serveAuditLog != "" {
		sink, err = audit.Open(serveAuditLog)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer sink.Close()
	}

	enf := enforce.New(enforce.Options{
		Mode:       cfg.Enforcement,
		PolicyHash: hash,
		Audit:      sink,
		Metrics:    m,
		Logger:     logger.Named("enforce"),
	})
	engine := flowgraph.New(flowgraph.Options{
		Window:   cfg.Window.Buckets,
		Interval: cfg.Window.Interval,
		Enforcer: enf,
		Logger:   logger.Named("engine"),
		Metrics:  m,
	})

	srv, err := server.New(server.Config{
		Addr:       serviceAddr,
		PolicyPath: servePolicy,
		DryRun:     serveDryRun,
	}, engine, enf, logger.Named("server"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policyPath := servePolicy
	if policyPath == "" {
		policyPath = policy.DefaultPath()
	}
	reloader, err := server.NewReloader(srv, []string{policyPath}, logger.Named("reload"))
	if err != nil {
		logger.Warn("hot-reload disabled", zap.Error(err))
	} else {
		go reloader.Run(ctx)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := srv.ReloadPolicy(); err != nil {
					logger.Error("policy reload failed, keeping previous policy", zap.Error(err))
				}
			}
		}
	}()

	ticker := monitor.New(monitor.Config{Interval: cfg.Window.Interval}, engine, logger.Named("monitor"))
	go ticker.Run(ctx)

	if serveMetricsAddr != "" {
		ms := newMetricsServer(serveMetricsAddr, m)
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer shutdownHTTP(ms)
		logger.Info("metrics listening", zap.String("addr", serveMetricsAddr))
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down flow graph service")
		srv.GracefulStop()
	}()

	logger.Info("flow graph service starting",
		zap.String("addr", serviceAddr),
		zap.String("policy", policyPath),
		zap.Int("window_buckets", cfg.Window.Buckets),
		zap.Duration("window_interval", cfg.Window.Interval),
		zap.Bool("dry_run", serveDryRun))
	return srv.Serve()
}

func newMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func shutdownHTTP(s *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)
}

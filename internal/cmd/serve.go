package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/powdr-labs/proverd/internal/config"
	"github.com/powdr-labs/proverd/internal/observability"
	"github.com/powdr-labs/proverd/internal/server"
	"github.com/powdr-labs/proverd/internal/server/handlers"
	"github.com/powdr-labs/proverd/pkg/jobregistry"
	"github.com/powdr-labs/proverd/pkg/keysync"
	"github.com/powdr-labs/proverd/pkg/poller"
)

var serveWithPoller bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job control HTTP service",
	Long: `Run the HTTP service that starts proof jobs, reports their state, and
serves their captured logs.

Example:
  proverd serve
  proverd serve --with-poller`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithPoller, "with-poller", false, "Also run the block interval poller in-process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	if err := cfg.ValidateForServer(); err != nil {
		return err
	}
	if serveWithPoller {
		if err := cfg.ValidateForPoller(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.CLILogger
	syncProvingKeys(ctx, cfg, logger)

	if err := os.MkdirAll(cfg.Prover.JobsDir, 0755); err != nil {
		return fmt.Errorf("create jobs dir: %w", err)
	}

	registry := jobregistry.NewRegistry(jobregistry.NewInvoker(cfg.Prover.Script, cfg.Prover.JobsDir))
	metrics := observability.NewMetrics()

	proofs := handlers.NewProofHandler(registry, logger)
	proofs.OnJobStarted(metrics.JobsStarted.Inc)

	health := handlers.NewHealthManager()
	health.RegisterChecker("jobs_dir", handlers.HealthCheckerFunc(func(ctx context.Context) error {
		return checkWritable(cfg.Prover.JobsDir)
	}))
	health.RegisterChecker("prove_script", handlers.HealthCheckerFunc(func(ctx context.Context) error {
		_, err := os.Stat(cfg.Prover.Script)
		return err
	}))

	opts := server.Options{
		Proofs:       proofs,
		Health:       health,
		Logger:       logger,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsHandler = metrics.Handler()
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts)

	// Build the poller before anything starts listening so a preflight
	// failure (bad cluster id, unreachable RPC) aborts startup cleanly.
	var p *poller.Poller
	if serveWithPoller {
		var err error
		p, err = buildPoller(ctx, cfg, metrics, logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("job control service listening", zap.String("addr", srv.Addr()))
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if p != nil {
		g.Go(func() error {
			err := p.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// syncProvingKeys mirrors the original startup behavior: download missing
// keys, log failures, keep the server up either way.
func syncProvingKeys(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	specs := []keysync.KeySpec{
		{Name: "app", URI: cfg.Keys.AppURI, Path: cfg.Keys.AppPath},
		{Name: "agg", URI: cfg.Keys.AggURI, Path: cfg.Keys.AggPath},
	}
	if cfg.Keys.AppURI == "" && cfg.Keys.AggURI == "" {
		return
	}

	syncer, err := keysync.NewFromEnv(ctx, logger)
	if err != nil {
		logger.Warn("proving key sync unavailable", zap.Error(err))
		return
	}
	n, err := syncer.Sync(ctx, specs)
	if err != nil {
		logger.Warn("proving key sync incomplete", zap.Int("downloaded", n), zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("proving keys downloaded", zap.Int("count", n))
	}
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

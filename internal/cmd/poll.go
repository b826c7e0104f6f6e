package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/powdr-labs/proverd/internal/config"
	"github.com/powdr-labs/proverd/internal/observability"
	"github.com/powdr-labs/proverd/pkg/chainhead"
	"github.com/powdr-labs/proverd/pkg/ethproofs"
	"github.com/powdr-labs/proverd/pkg/poller"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run the block interval poller",
	Long: `Watch the chain head and prove one block per interval: when a new interval
boundary is crossed, report the block as queued, prepare its input, run the
prove script, and submit the proof to the attestation API.

Example:
  proverd poll
  proverd poll --log-level debug`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	if err := cfg.ValidateForPoller(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.CLILogger
	metrics := observability.NewMetrics()

	p, err := buildPoller(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	err = p.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("poller stopped")
		return nil
	}
	return err
}

// buildPoller wires the chain head source, script pipeline, and attestation
// client, and verifies the configured cluster exists before the first cycle.
func buildPoller(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*poller.Poller, error) {
	client := ethproofs.NewClient(cfg.EthproofsBaseURL(), cfg.Ethproofs.APIKey)

	ok, err := client.HasCluster(ctx, cfg.Ethproofs.ClusterID)
	if err != nil {
		return nil, fmt.Errorf("verify cluster: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("cluster %d not registered with the attestation API", cfg.Ethproofs.ClusterID)
	}
	logger.Info("cluster verified",
		zap.Int64("cluster_id", cfg.Ethproofs.ClusterID),
		zap.String("base_url", cfg.EthproofsBaseURL()))

	head, err := chainhead.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}

	pipeline := &poller.ScriptPipeline{
		Script:    cfg.Prover.Script,
		JobsRoot:  cfg.Prover.JobsDir,
		ConfigTag: cfg.Prover.ConfigTag,
	}

	reporter := newCountedReporter(client, metrics.AttestationReports)

	pollerCfg := poller.Config{
		Interval:     cfg.Prover.Interval,
		BlockTime:    cfg.Prover.BlockTime,
		ErrorBackoff: cfg.Prover.ErrorBackoff,
		PrepareRetry: poller.RetryPolicy{
			MaxAttempts: cfg.Prover.PrepareAttempts,
			Backoff:     cfg.Prover.PrepareBackoff,
		},
		ClusterID:  cfg.Ethproofs.ClusterID,
		VerifierID: cfg.Ethproofs.VerifierID,
	}

	return poller.New(head, pipeline, reporter, pollerCfg, logger,
		poller.WithCycleHook(func(block uint64, err error) {
			metrics.ProofCyclesTotal.Inc()
			if err != nil {
				metrics.ProofCycleFailures.Inc()
			}
		})), nil
}

// Package poller drives the block interval proving loop: watch the chain
// head, fire one proving cycle per interval boundary crossing, and report
// lifecycle events to the attestation API.
package poller

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/powdr-labs/proverd/pkg/chainhead"
	"github.com/powdr-labs/proverd/pkg/ethproofs"
	"github.com/powdr-labs/proverd/pkg/jobregistry"
	"github.com/powdr-labs/proverd/pkg/proofenc"
)

// Reporter is the subset of the attestation API the poller uses.
type Reporter interface {
	SubmitQueued(ctx context.Context, block uint64, clusterID int64) (int64, error)
	SubmitProving(ctx context.Context, block uint64, clusterID int64) (int64, error)
	SubmitProved(ctx context.Context, report ethproofs.ProvedReport) (int64, error)
}

// Pipeline runs the external proving phases for a block and names the
// directory its artifacts land in.
type Pipeline interface {
	PrepareInput(ctx context.Context, block uint64) error
	Prove(ctx context.Context, block uint64) error
	WorkDir(block uint64) string
}

// RetryPolicy bounds a retry loop. MaxAttempts <= 0 retries forever.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Config carries the poller's tunables.
type Config struct {
	Interval        uint64
	BlockTime       time.Duration
	ErrorBackoff    time.Duration
	PrepareRetry    RetryPolicy
	ClusterID       int64
	VerifierID      string
	StartCheckpoint uint64
}

// Poller is a single long-lived sequential loop: at most one proving cycle is
// in flight at a time, and a cycle blocks the loop for the full external
// proof duration.
//
// The checkpoint is in-memory only. On restart the poller begins again from
// StartCheckpoint and will re-prove the current boundary; the attestation API
// dedupes reports per block and cluster.
type Poller struct {
	head     chainhead.Source
	pipeline Pipeline
	reporter Reporter
	cfg      Config
	logger   *zap.Logger

	checkpoint uint64
	sleep      func(ctx context.Context, d time.Duration) error
	cycleHook  func(block uint64, err error)
}

type Option func(*Poller)

// WithSleep overrides the wait function (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = fn }
}

// WithCycleHook registers a callback invoked after every proving cycle with
// its outcome. Used to feed metrics counters.
func WithCycleHook(fn func(block uint64, err error)) Option {
	return func(p *Poller) { p.cycleHook = fn }
}

func New(head chainhead.Source, pipeline Pipeline, reporter Reporter, cfg Config, logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		head:       head,
		pipeline:   pipeline,
		reporter:   reporter,
		cfg:        cfg,
		logger:     logger,
		checkpoint: cfg.StartCheckpoint,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Checkpoint returns the last interval boundary a proving cycle was started
// for.
func (p *Poller) Checkpoint() uint64 {
	return p.checkpoint
}

// Run executes the poll loop until the context is cancelled. Errors inside an
// iteration are logged and followed by a fixed backoff; the loop itself never
// terminates on error.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("poll iteration failed",
				zap.Uint64("checkpoint", p.checkpoint),
				zap.Error(err))
			if serr := p.sleep(ctx, p.cfg.ErrorBackoff); serr != nil {
				return serr
			}
		}
	}
}

// Tick runs one iteration of the loop: query the head, fire a proving cycle
// if a new boundary has been crossed, otherwise wait out the estimated time
// to the next boundary.
func (p *Poller) Tick(ctx context.Context) error {
	head, err := p.head.Head(ctx)
	if err != nil {
		return err
	}
	p.logger.Debug("chain head", zap.Uint64("head", head))

	if p.checkpoint >= head {
		return fmt.Errorf("checkpoint %d is at or beyond chain head %d", p.checkpoint, head)
	}

	boundary := chainhead.Boundary(head, p.cfg.Interval)
	if boundary != p.checkpoint {
		// Advance the checkpoint before the cycle so a mid-cycle failure
		// does not re-trigger the same boundary within this process run.
		p.checkpoint = boundary
		err := p.proveCycle(ctx, boundary)
		if p.cycleHook != nil {
			p.cycleHook(boundary, err)
		}
		return err
	}

	wait := time.Duration(chainhead.BlocksUntilNext(head, p.cfg.Interval)) * p.cfg.BlockTime
	p.logger.Info("waiting for next interval boundary",
		zap.Uint64("head", head),
		zap.Duration("estimated_wait", wait))
	return p.sleep(ctx, wait)
}

// proveCycle runs one synchronous proving cycle for the target block.
//
// The queued report is required: if the attestation API rejects it, the cycle
// aborts. A non-zero prove-phase exit also aborts the cycle before any
// artifact is read, so a failed run never publishes garbage metrics.
func (p *Poller) proveCycle(ctx context.Context, block uint64) error {
	p.logger.Info("proving block", zap.Uint64("block", block))

	if _, err := p.reporter.SubmitQueued(ctx, block, p.cfg.ClusterID); err != nil {
		return fmt.Errorf("report queued for block %d: %w", block, err)
	}

	if err := p.retryPrepare(ctx, block); err != nil {
		return err
	}

	if _, err := p.reporter.SubmitProving(ctx, block, p.cfg.ClusterID); err != nil {
		// Lifecycle reports after queued are best effort.
		p.logger.Warn("report proving failed", zap.Uint64("block", block), zap.Error(err))
	}

	if err := p.pipeline.Prove(ctx, block); err != nil {
		return fmt.Errorf("prove phase for block %d: %w", block, err)
	}

	dir := p.pipeline.WorkDir(block)
	cycles := jobregistry.ReadInstructionCount(dir)
	var latency int64
	if v := jobregistry.ReadLatencyMS(dir); v != nil {
		latency = *v
	}

	proofB64, err := proofenc.EncodeFile(filepath.Join(dir, "proof.json"))
	if err != nil {
		// Missing or malformed artifacts are reported as empty rather than
		// aborting a finished proof run.
		p.logger.Warn("proof artifact unavailable", zap.Uint64("block", block), zap.Error(err))
	}

	proofID, err := p.reporter.SubmitProved(ctx, ethproofs.ProvedReport{
		BlockNumber:   block,
		ClusterID:     p.cfg.ClusterID,
		ProvingTimeMS: latency,
		ProvingCycles: cycles,
		Proof:         proofB64,
		VerifierID:    p.cfg.VerifierID,
	})
	if err != nil {
		p.logger.Warn("report proved failed", zap.Uint64("block", block), zap.Error(err))
	} else {
		p.logger.Info("done proving block",
			zap.Uint64("block", block),
			zap.Int64("proof_id", proofID),
			zap.Int64("latency_ms", latency),
			zap.Int64("cycles", cycles))
	}
	return nil
}

// retryPrepare runs the input-preparation phase under the configured retry
// policy.
func (p *Poller) retryPrepare(ctx context.Context, block uint64) error {
	policy := p.cfg.PrepareRetry
	attempt := 0
	for {
		attempt++
		err := p.pipeline.PrepareInput(ctx, block)
		if err == nil {
			return nil
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("prepare input for block %d: %d attempts: %w", block, attempt, err)
		}
		p.logger.Warn("prepare input failed, retrying",
			zap.Uint64("block", block),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", policy.Backoff),
			zap.Error(err))
		if serr := p.sleep(ctx, policy.Backoff); serr != nil {
			return serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

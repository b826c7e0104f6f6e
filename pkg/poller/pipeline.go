package poller

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/powdr-labs/proverd/pkg/jobregistry"
)

// ScriptPipeline runs the external prove_block.sh script: once with
// "make-input" to download the block and prepare the execution witness, and
// once bare to produce the proof. The script inherits the poller's stdio, as
// the poller path has no per-job log capture.
type ScriptPipeline struct {
	Script    string
	JobsRoot  string
	ConfigTag string
}

// WorkDir is the deterministic artifact directory for a block: the external
// pipeline writes num_instret, latency_ms, and proof.json under
// <jobs_root>/<block>-<config_tag>.
func (s *ScriptPipeline) WorkDir(block uint64) string {
	return filepath.Join(s.JobsRoot, fmt.Sprintf("%d-%s", block, s.ConfigTag))
}

func (s *ScriptPipeline) PrepareInput(ctx context.Context, block uint64) error {
	if err := s.run(ctx, strconv.FormatUint(block, 10), "make-input"); err != nil {
		return fmt.Errorf("make-input for block %d: %w", block, err)
	}
	return nil
}

func (s *ScriptPipeline) Prove(ctx context.Context, block uint64) error {
	if err := s.run(ctx, strconv.FormatUint(block, 10)); err != nil {
		return fmt.Errorf("prove for block %d: %w", block, err)
	}
	return nil
}

func (s *ScriptPipeline) run(ctx context.Context, args ...string) error {
	if _, err := os.Stat(s.Script); err != nil {
		return fmt.Errorf("%w: %s", jobregistry.ErrScriptNotFound, s.Script)
	}
	cmd := exec.CommandContext(ctx, s.Script, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	return cmd.Run()
}

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/powdr-labs/proverd/internal/observability"
	"github.com/powdr-labs/proverd/pkg/precompile"
)

var analyzePrecompilesCmd = &cobra.Command{
	Use:   "precompiles [block]",
	Short: "Count precompile calls in a block",
	Long: `Trace a block with debug_traceBlockByNumber (callTracer) and report how
often each precompile was called, per transaction and in total. The RPC
endpoint must expose the debug namespace.

Example:
  proverd analyze precompiles 21000000
  proverd analyze precompiles 21000000 --rpc http://localhost:8545
  proverd analyze precompiles 21000000 --top-k 10
  proverd analyze precompiles 21000000 --filter bn254_add,bn254_mul
  proverd analyze precompiles --check`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyzePrecompiles,
}

var (
	precompilesRPC    string
	precompilesCheck  bool
	precompilesTopK   int
	precompilesFilter string
)

func init() {
	analyzeCmd.AddCommand(analyzePrecompilesCmd)

	analyzePrecompilesCmd.Flags().StringVar(&precompilesRPC, "rpc", "http://localhost:8545", "RPC endpoint URL")
	analyzePrecompilesCmd.Flags().BoolVar(&precompilesCheck, "check", false, "Probe the endpoint for debug_traceBlockByNumber support")
	analyzePrecompilesCmd.Flags().IntVarP(&precompilesTopK, "top-k", "k", 5, "Top transactions to show")
	analyzePrecompilesCmd.Flags().StringVarP(&precompilesFilter, "filter", "f", "", "Comma-separated precompile names to filter on")
}

func runAnalyzePrecompiles(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	analyzer, err := precompile.Dial(ctx, precompilesRPC, observability.CLILogger)
	if err != nil {
		return err
	}

	if precompilesCheck {
		return analyzer.Check(ctx, out)
	}

	if len(args) == 0 {
		return fmt.Errorf("block number is required (or use --check)")
	}
	block, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid block number %q: %w", args[0], err)
	}

	var filter []string
	if precompilesFilter != "" {
		filter, err = precompile.ParseFilter(precompilesFilter)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "# PRECOMPILE ANALYZER")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Block: %d\n\n", block)

	stats, err := analyzer.AnalyzeBlock(ctx, block)
	if err != nil {
		return err
	}

	precompile.Report(out, block, stats, filter, precompilesTopK)
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/powdr-labs/proverd/internal/observability"
	"github.com/powdr-labs/proverd/pkg/blockstats"
	"github.com/powdr-labs/proverd/pkg/ethproofs"
)

var analyzeBlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Rank blocks by gas used and proving time",
	Long: `Fetch block data from the ethproofs API (or a local JSON dump) and rank
blocks by gas used and by min/max/avg/median proving time across provers.

Example:
  proverd analyze blocks
  proverd analyze blocks --pages 5
  proverd analyze blocks --pages 10 --size 50
  proverd analyze blocks --file data.json
  proverd analyze blocks --top-k 10 --metric median`,
	RunE: runAnalyzeBlocks,
}

var (
	blocksPages       int
	blocksPageSize    int
	blocksFile        string
	blocksMachineType string
	blocksTopK        int
	blocksMetric      string
)

func init() {
	analyzeCmd.AddCommand(analyzeBlocksCmd)

	analyzeBlocksCmd.Flags().IntVarP(&blocksPages, "pages", "p", 1, "Number of pages to fetch")
	analyzeBlocksCmd.Flags().IntVarP(&blocksPageSize, "size", "s", 100, "Blocks per page")
	analyzeBlocksCmd.Flags().StringVarP(&blocksFile, "file", "f", "", "Load data from a JSON file instead of fetching")
	analyzeBlocksCmd.Flags().StringVarP(&blocksMachineType, "machine-type", "m", "multi", "Machine type filter (multi|single)")
	analyzeBlocksCmd.Flags().IntVarP(&blocksTopK, "top-k", "k", 1, "Top blocks to show per metric")
	analyzeBlocksCmd.Flags().StringVar(&blocksMetric, "metric", "all", "Metric to show (all|gas|max|median|avg|min)")
}

func runAnalyzeBlocks(cmd *cobra.Command, args []string) error {
	metric, err := blockstats.ParseMetric(blocksMetric)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# ETHPROOFS ANALYZER")
	fmt.Fprintln(out)

	var rows []ethproofs.BlockRow
	if blocksFile != "" {
		fmt.Fprintf(out, "Source: %s\n\n", blocksFile)
		rows, err = loadBlocksFile(blocksFile)
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Source: %s\n", ethproofs.DefaultDataBaseURL)
		fmt.Fprintf(out, "Config: %d x %d blocks, filter=%s\n\n", blocksPages, blocksPageSize, blocksMachineType)

		client := ethproofs.NewDataClient(ethproofs.DefaultDataBaseURL)
		rows, err = client.FetchBlocks(cmd.Context(), blocksPages, blocksPageSize, blocksMachineType)
		if err != nil {
			// A partial fetch is still worth reporting.
			observability.CLILogger.Warn("block fetch incomplete",
				zap.Int("rows", len(rows)), zap.Error(err))
			if len(rows) == 0 {
				return err
			}
		}
	}

	blockstats.Report(out, rows, blocksTopK, metric)
	return nil
}

func loadBlocksFile(path string) ([]ethproofs.BlockRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var page ethproofs.BlocksPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return page.Rows, nil
}

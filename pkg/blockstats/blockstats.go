// Package blockstats computes proving-time statistics over ethproofs block
// data and renders ranking reports.
package blockstats

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/powdr-labs/proverd/pkg/ethproofs"
)

// BlockStats holds per-block proving-time statistics across all provers that
// submitted a proof for the block.
type BlockStats struct {
	Block      ethproofs.BlockRow
	MinMS      float64
	MaxMS      float64
	AvgMS      float64
	MedianMS   float64
	ProofCount int
}

// Metric selects a ranking dimension for the report.
type Metric string

const (
	MetricAll    Metric = "all"
	MetricGas    Metric = "gas"
	MetricMax    Metric = "max"
	MetricMedian Metric = "median"
	MetricAvg    Metric = "avg"
	MetricMin    Metric = "min"
)

// ParseMetric validates a metric flag value.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(s)); m {
	case MetricAll, MetricGas, MetricMax, MetricMedian, MetricAvg, MetricMin:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q (want all, gas, max, median, avg, min)", s)
	}
}

// Compute derives per-block stats from raw rows. Blocks without any proving
// time are skipped.
func Compute(rows []ethproofs.BlockRow) []BlockStats {
	stats := make([]BlockStats, 0, len(rows))
	for _, row := range rows {
		times := make([]float64, 0, len(row.Proofs))
		for _, p := range row.Proofs {
			if p.ProvingTime != nil {
				times = append(times, *p.ProvingTime)
			}
		}
		if len(times) == 0 {
			continue
		}
		sort.Float64s(times)

		sum := 0.0
		for _, t := range times {
			sum += t
		}
		stats = append(stats, BlockStats{
			Block:      row,
			MinMS:      times[0],
			MaxMS:      times[len(times)-1],
			AvgMS:      sum / float64(len(times)),
			MedianMS:   median(times),
			ProofCount: len(times),
		})
	}
	return stats
}

// median expects a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// TopByGas returns the k blocks with the highest gas used, skipping blocks
// without gas data.
func TopByGas(rows []ethproofs.BlockRow, k int) []ethproofs.BlockRow {
	withGas := make([]ethproofs.BlockRow, 0, len(rows))
	for _, row := range rows {
		if row.GasUsed != nil {
			withGas = append(withGas, row)
		}
	}
	sort.SliceStable(withGas, func(i, j int) bool {
		return *withGas[i].GasUsed > *withGas[j].GasUsed
	})
	if k < len(withGas) {
		withGas = withGas[:k]
	}
	return withGas
}

// TopByStat returns the k blocks ranked descending by the chosen stat.
func TopByStat(stats []BlockStats, metric Metric, k int) []BlockStats {
	ranked := make([]BlockStats, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		return statValue(ranked[i], metric) > statValue(ranked[j], metric)
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

func statValue(s BlockStats, metric Metric) float64 {
	switch metric {
	case MetricMax:
		return s.MaxMS
	case MetricAvg:
		return s.AvgMS
	case MetricMin:
		return s.MinMS
	default:
		return s.MedianMS
	}
}

// Report renders the ranking tables for the requested metric to w.
func Report(w io.Writer, rows []ethproofs.BlockRow, topK int, metric Metric) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No blocks found in the response.")
		return
	}
	stats := Compute(rows)

	withGas := 0
	for _, row := range rows {
		if row.GasUsed != nil {
			withGas++
		}
	}
	totalProofs := 0
	for _, s := range stats {
		totalProofs += s.ProofCount
	}
	fmt.Fprintf(w, "Fetched %d blocks (%d with gas, %d proofs)\n", len(rows), withGas, totalProofs)

	if metric == MetricAll || metric == MetricGas {
		fmt.Fprintf(w, "\n## Top %d by Gas Used\n\n", topK)
		top := TopByGas(rows, topK)
		if len(top) == 0 {
			fmt.Fprintln(w, "No blocks with gas data found")
		} else {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "Rank\tBlock\tGas\tTxs\tTimestamp")
			for i, row := range top {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
					i+1, row.BlockNumber, fmtGas(row.GasUsed), fmtTxs(row.TransactionCount), fmtTimestamp(row.Timestamp))
			}
			tw.Flush()
		}
	}

	if len(stats) == 0 && metric != MetricGas {
		fmt.Fprintln(w, "\nNo proofs with proving time data found")
		return
	}

	for _, m := range []Metric{MetricMax, MetricMedian, MetricAvg, MetricMin} {
		if metric != MetricAll && metric != m {
			continue
		}
		fmt.Fprintf(w, "\n## Top %d by %s Proving Time\n\n", topK, strings.ToUpper(string(m)))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Rank\tBlock\tTime (%s)\tGas\tTxs\n", m)
		for i, s := range TopByStat(stats, m, topK) {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
				i+1, s.Block.BlockNumber, fmtTime(statValue(s, m)), fmtGas(s.Block.GasUsed), fmtTxs(s.Block.TransactionCount))
		}
		tw.Flush()
	}
}

// fmtTime renders milliseconds as seconds with two decimals.
func fmtTime(ms float64) string {
	return fmt.Sprintf("%.2fs", ms/1000)
}

func fmtGas(gas *int64) string {
	if gas == nil {
		return "N/A"
	}
	return groupDigits(*gas)
}

func fmtTxs(txs *int) string {
	if txs == nil {
		return "N/A"
	}
	return strconv.Itoa(*txs)
}

// fmtTimestamp trims timezone detail down to YYYY-MM-DD HH:MM:SS.
func fmtTimestamp(ts string) string {
	if ts == "" {
		return "N/A"
	}
	if len(ts) > 19 {
		return ts[:19]
	}
	return ts
}

// groupDigits inserts thousands separators.
func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Package precompile counts precompile contract calls in a block using the
// callTracer output of debug_traceBlockByNumber.
package precompile

import (
	"fmt"
	"sort"
	"strings"
)

// Known precompile addresses by the fork that introduced them, through Osaka
// (RIP-7212 p256_verify at 0x100).
var addressNames = map[string]string{
	// Frontier
	"0x0000000000000000000000000000000000000001": "ecrecover",
	"0x0000000000000000000000000000000000000002": "sha256",
	"0x0000000000000000000000000000000000000003": "ripemd160",
	"0x0000000000000000000000000000000000000004": "identity",
	// Byzantium
	"0x0000000000000000000000000000000000000005": "modexp",
	"0x0000000000000000000000000000000000000006": "bn254_add",
	"0x0000000000000000000000000000000000000007": "bn254_mul",
	"0x0000000000000000000000000000000000000008": "bn254_pairing",
	// Istanbul
	"0x0000000000000000000000000000000000000009": "blake2f",
	// Cancun
	"0x000000000000000000000000000000000000000a": "kzg_point_eval",
	// Prague
	"0x000000000000000000000000000000000000000b": "bls12_g1_add",
	"0x000000000000000000000000000000000000000c": "bls12_g1_msm",
	"0x000000000000000000000000000000000000000d": "bls12_g2_add",
	"0x000000000000000000000000000000000000000e": "bls12_g2_msm",
	"0x000000000000000000000000000000000000000f": "bls12_pairing",
	"0x0000000000000000000000000000000000000010": "bls12_map_fp_to_g1",
	"0x0000000000000000000000000000000000000011": "bls12_map_fp2_to_g2",
	// Osaka
	"0x0000000000000000000000000000000000000100": "p256_verify",
}

// Names returns all known precompile names, sorted.
func Names() []string {
	names := make([]string, 0, len(addressNames))
	for _, n := range addressNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Name resolves a callee address to a precompile name. Matching is
// case-insensitive on the address.
func Name(addr string) (string, bool) {
	n, ok := addressNames[strings.ToLower(addr)]
	return n, ok
}

// CallFrame is one node of a callTracer result tree.
type CallFrame struct {
	To    string      `json:"to"`
	Calls []CallFrame `json:"calls"`
}

// TxTrace is one entry of a debug_traceBlockByNumber response.
type TxTrace struct {
	TxHash string     `json:"txHash"`
	Result *CallFrame `json:"result"`
}

// TxStats holds precompile call counts for one transaction.
type TxStats struct {
	TxHash string
	Counts map[string]int
}

// Total sums the counts, restricted to filter when non-empty.
func (s TxStats) Total(filter []string) int {
	if len(filter) == 0 {
		total := 0
		for _, c := range s.Counts {
			total += c
		}
		return total
	}
	total := 0
	for _, name := range filter {
		total += s.Counts[name]
	}
	return total
}

// CountCalls walks a call tree and accumulates precompile call counts.
func CountCalls(frame *CallFrame, counts map[string]int) {
	if frame == nil {
		return
	}
	if name, ok := Name(frame.To); ok {
		counts[name]++
	}
	for i := range frame.Calls {
		CountCalls(&frame.Calls[i], counts)
	}
}

// FrameCount returns the total number of frames in a call tree.
func FrameCount(frame *CallFrame) int {
	if frame == nil {
		return 0
	}
	n := 1
	for i := range frame.Calls {
		n += FrameCount(&frame.Calls[i])
	}
	return n
}

// Collect turns a block trace into per-transaction stats, dropping
// transactions that touch no precompile.
func Collect(trace []TxTrace) []TxStats {
	stats := make([]TxStats, 0, len(trace))
	for _, tx := range trace {
		counts := make(map[string]int)
		CountCalls(tx.Result, counts)
		if len(counts) == 0 {
			continue
		}
		hash := tx.TxHash
		if hash == "" {
			hash = "unknown"
		}
		stats = append(stats, TxStats{TxHash: hash, Counts: counts})
	}
	return stats
}

// ParseFilter splits a comma-separated list of precompile names and
// normalizes them case-insensitively against the known set.
func ParseFilter(arg string) ([]string, error) {
	byLower := make(map[string]string, len(addressNames))
	for _, n := range addressNames {
		byLower[strings.ToLower(n)] = n
	}
	var names []string
	for _, part := range strings.Split(arg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, ok := byLower[strings.ToLower(part)]
		if !ok {
			return nil, fmt.Errorf("invalid precompile name %q (valid: %s)", part, strings.Join(Names(), ", "))
		}
		names = append(names, name)
	}
	return names, nil
}

// FilterStats keeps only transactions touching one of the named precompiles,
// with their counts restricted to those names.
func FilterStats(stats []TxStats, names []string) []TxStats {
	if len(names) == 0 {
		return stats
	}
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	filtered := make([]TxStats, 0, len(stats))
	for _, s := range stats {
		counts := make(map[string]int)
		for name, c := range s.Counts {
			if keep[name] {
				counts[name] = c
			}
		}
		if len(counts) > 0 {
			filtered = append(filtered, TxStats{TxHash: s.TxHash, Counts: counts})
		}
	}
	return filtered
}

// TopTransactions ranks transactions descending by their (filtered) total.
func TopTransactions(stats []TxStats, filter []string, k int) []TxStats {
	ranked := FilterStats(stats, filter)
	sorted := make([]TxStats, len(ranked))
	copy(sorted, ranked)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Total(filter) > sorted[j].Total(filter)
	})
	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}

// Totals aggregates counts across all transactions, restricted to filter
// when non-empty.
func Totals(stats []TxStats, filter []string) map[string]int {
	keep := map[string]bool{}
	for _, n := range filter {
		keep[n] = true
	}
	totals := make(map[string]int)
	for _, s := range stats {
		for name, c := range s.Counts {
			if len(filter) > 0 && !keep[name] {
				continue
			}
			totals[name] += c
		}
	}
	return totals
}

package precompile

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Caller is the JSON-RPC slice the analyzer needs; *rpc.Client satisfies it.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Analyzer fetches callTracer traces and derives precompile usage.
type Analyzer struct {
	rpc    Caller
	logger *zap.Logger
}

func NewAnalyzer(rpc Caller, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{rpc: rpc, logger: logger}
}

// Dial connects to an execution-layer JSON-RPC endpoint. The endpoint must
// expose the debug namespace.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Analyzer, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	return NewAnalyzer(client, logger), nil
}

var callTracerConfig = map[string]string{"tracer": "callTracer"}

// TraceBlock fetches the callTracer trace for a block.
func (a *Analyzer) TraceBlock(ctx context.Context, block uint64) ([]TxTrace, error) {
	var trace []TxTrace
	blockHex := fmt.Sprintf("0x%x", block)
	if err := a.rpc.CallContext(ctx, &trace, "debug_traceBlockByNumber", blockHex, callTracerConfig); err != nil {
		return nil, fmt.Errorf("debug_traceBlockByNumber %d: %w", block, err)
	}
	return trace, nil
}

// AnalyzeBlock returns per-transaction precompile counts for a block.
func (a *Analyzer) AnalyzeBlock(ctx context.Context, block uint64) ([]TxStats, error) {
	trace, err := a.TraceBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	frames := 0
	for _, tx := range trace {
		frames += FrameCount(tx.Result)
	}
	a.logger.Debug("block trace fetched",
		zap.Uint64("block", block),
		zap.Int("transactions", len(trace)),
		zap.Int("call_frames", frames))
	return Collect(trace), nil
}

// Check probes the endpoint: eth_blockNumber first, then a trace of a block
// 100 behind the head, so a pruned node fails loudly before a long analysis.
func (a *Analyzer) Check(ctx context.Context, out io.Writer) error {
	fmt.Fprintln(out, "Checking for debug_traceBlockByNumber support...")

	var headHex string
	if err := a.rpc.CallContext(ctx, &headHex, "eth_blockNumber"); err != nil {
		return fmt.Errorf("eth_blockNumber: %w", err)
	}
	var head uint64
	if _, err := fmt.Sscanf(headHex, "0x%x", &head); err != nil {
		return fmt.Errorf("parse block number %q: %w", headHex, err)
	}
	fmt.Fprintf(out, "  eth_blockNumber: %d\n", head)

	testBlock := head
	if head > 100 {
		testBlock = head - 100
	}
	trace, err := a.TraceBlock(ctx, testBlock)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  debug_traceBlockByNumber: OK (%d transactions)\n", len(trace))
	return nil
}

// Report renders the block summary and the top-K transaction table.
func Report(w io.Writer, block uint64, stats []TxStats, filter []string, topK int) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No precompile calls found in this block.")
		return
	}

	if len(filter) > 0 {
		fmt.Fprintf(w, "## Block %d Summary (filtered: %s)\n\n", block, joinNames(filter))
	} else {
		fmt.Fprintf(w, "## Block %d Summary\n\n", block)
	}

	totals := Totals(stats, filter)
	type entry struct {
		name  string
		count int
	}
	ranked := make([]entry, 0, len(totals))
	grand := 0
	for name, c := range totals {
		ranked = append(ranked, entry{name, c})
		grand += c
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Precompile\tCalls")
	for _, e := range ranked {
		fmt.Fprintf(tw, "%s\t%d\n", e.name, e.count)
	}
	fmt.Fprintf(tw, "Total\t%d\n", grand)
	tw.Flush()

	top := TopTransactions(stats, filter, topK)
	if len(filter) > 0 {
		fmt.Fprintf(w, "\n## Top %d Transactions using %s\n\n", len(top), joinNames(filter))
	} else {
		fmt.Fprintf(w, "\n## Top %d Transactions by Precompile Calls\n\n", len(top))
	}

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Rank\tTransaction\tCalls")
	for i, s := range top {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, s.TxHash, s.Total(filter))
	}
	tw.Flush()
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

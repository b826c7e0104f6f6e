package ethproofs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDataBaseURL is the public (unauthenticated) block-data API used by
// the analyzer.
const DefaultDataBaseURL = "https://ethproofs.org/api"

// BlockProof is one prover's submission for a block.
type BlockProof struct {
	ProvingTime *float64 `json:"proving_time"`
}

// BlockRow is one block as reported by the data API.
type BlockRow struct {
	BlockNumber      uint64       `json:"block_number"`
	GasUsed          *int64       `json:"gas_used"`
	TransactionCount *int         `json:"transaction_count"`
	Timestamp        string       `json:"timestamp"`
	Proofs           []BlockProof `json:"proofs"`
}

// BlocksPage is one page of the blocks listing.
type BlocksPage struct {
	Rows []BlockRow `json:"rows"`
}

// DataClient fetches public block data for analysis. It is rate limited to
// stay polite toward the API during multi-page fetches.
type DataClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type DataOption func(*DataClient)

func WithDataHTTPClient(h *http.Client) DataOption {
	return func(c *DataClient) { c.http = h }
}

func WithRateLimit(l *rate.Limiter) DataOption {
	return func(c *DataClient) { c.limiter = l }
}

func NewDataClient(baseURL string, opts ...DataOption) *DataClient {
	if baseURL == "" {
		baseURL = DefaultDataBaseURL
	}
	c := &DataClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BlocksPage fetches a single page of blocks.
func (c *DataClient) BlocksPage(ctx context.Context, pageIndex, pageSize int, machineType string) (*BlocksPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("page_index", strconv.Itoa(pageIndex))
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("machine_type", machineType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/blocks?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blocks page %d: %w", pageIndex, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch blocks page %d: unexpected status %d", pageIndex, resp.StatusCode)
	}

	var page BlocksPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode blocks page %d: %w", pageIndex, err)
	}
	return &page, nil
}

// FetchBlocks fetches up to pages pages of pageSize blocks, stopping early
// when a short page signals the end of the data set.
func (c *DataClient) FetchBlocks(ctx context.Context, pages, pageSize int, machineType string) ([]BlockRow, error) {
	var rows []BlockRow
	for i := 0; i < pages; i++ {
		page, err := c.BlocksPage(ctx, i, pageSize, machineType)
		if err != nil {
			// Partial data is still useful to the analyzer; return what we
			// have alongside the error and let the caller decide.
			return rows, err
		}
		rows = append(rows, page.Rows...)
		if len(page.Rows) < pageSize {
			break
		}
	}
	return rows, nil
}

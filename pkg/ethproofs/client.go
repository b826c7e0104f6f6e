// Package ethproofs is a client for the ethproofs attestation API, which
// records proof lifecycle events (queued/proving/proved) for public
// reporting, and for the public block-data API used by the analyzer.
package ethproofs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// StagingBaseURL and ProductionBaseURL are the two known deployments of
	// the attestation API.
	StagingBaseURL    = "https://staging--ethproofs.netlify.app/api/v0"
	ProductionBaseURL = "https://ethproofs.org/api/v0"

	defaultTimeout = 30 * time.Second
)

// Client talks to the attestation API. All submit calls are simple
// request/response; a non-2xx status is returned as an error and the caller
// decides whether it is fatal for the current cycle.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests, custom
// timeouts).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cluster is one registered prover cluster.
type Cluster struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// ProvedReport is the payload of the final proved submission.
type ProvedReport struct {
	BlockNumber   uint64 `json:"block_number"`
	ClusterID     int64  `json:"cluster_id"`
	ProvingTimeMS int64  `json:"proving_time"`
	ProvingCycles int64  `json:"proving_cycles"`
	Proof         string `json:"proof"`
	VerifierID    string `json:"verifier_id"`
}

type lifecyclePayload struct {
	BlockNumber uint64 `json:"block_number"`
	ClusterID   int64  `json:"cluster_id"`
}

type submitResponse struct {
	ProofID int64 `json:"proof_id"`
}

// SubmitQueued reports that a proof for the block has been queued. Returns
// the proof id assigned by the API.
func (c *Client) SubmitQueued(ctx context.Context, block uint64, clusterID int64) (int64, error) {
	return c.submitLifecycle(ctx, "/proofs/queued", block, clusterID)
}

// SubmitProving reports that proving has started for the block.
func (c *Client) SubmitProving(ctx context.Context, block uint64, clusterID int64) (int64, error) {
	return c.submitLifecycle(ctx, "/proofs/proving", block, clusterID)
}

func (c *Client) submitLifecycle(ctx context.Context, path string, block uint64, clusterID int64) (int64, error) {
	var resp submitResponse
	err := c.post(ctx, path, lifecyclePayload{BlockNumber: block, ClusterID: clusterID}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ProofID, nil
}

// SubmitProved reports the final proof with its metrics and encoded payload.
func (c *Client) SubmitProved(ctx context.Context, report ProvedReport) (int64, error) {
	var resp submitResponse
	if err := c.post(ctx, "/proofs/proved", report, &resp); err != nil {
		return 0, err
	}
	return resp.ProofID, nil
}

// Clusters lists the registered clusters. Used at poller startup to verify
// the configured cluster id exists.
func (c *Client) Clusters(ctx context.Context) ([]Cluster, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/clusters", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get clusters: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get clusters: unexpected status %d", resp.StatusCode)
	}

	var clusters []Cluster
	if err := json.NewDecoder(resp.Body).Decode(&clusters); err != nil {
		return nil, fmt.Errorf("decode clusters: %w", err)
	}
	return clusters, nil
}

// HasCluster reports whether clusterID is registered.
func (c *Client) HasCluster(ctx context.Context, clusterID int64) (bool, error) {
	clusters, err := c.Clusters(ctx)
	if err != nil {
		return false, err
	}
	for _, cl := range clusters {
		if cl.ID == clusterID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: unexpected status %d: %s", path, resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

package cmd

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/powdr-labs/proverd/pkg/ethproofs"
	"github.com/powdr-labs/proverd/pkg/poller"
)

// countedReporter wraps an attestation reporter and counts every submission
// by phase and outcome.
type countedReporter struct {
	inner   poller.Reporter
	reports *prometheus.CounterVec
}

func newCountedReporter(inner poller.Reporter, reports *prometheus.CounterVec) *countedReporter {
	return &countedReporter{inner: inner, reports: reports}
}

func (c *countedReporter) SubmitQueued(ctx context.Context, block uint64, clusterID int64) (int64, error) {
	id, err := c.inner.SubmitQueued(ctx, block, clusterID)
	c.count("queued", err)
	return id, err
}

func (c *countedReporter) SubmitProving(ctx context.Context, block uint64, clusterID int64) (int64, error) {
	id, err := c.inner.SubmitProving(ctx, block, clusterID)
	c.count("proving", err)
	return id, err
}

func (c *countedReporter) SubmitProved(ctx context.Context, report ethproofs.ProvedReport) (int64, error) {
	id, err := c.inner.SubmitProved(ctx, report)
	c.count("proved", err)
	return id, err
}

func (c *countedReporter) count(phase string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.reports.WithLabelValues(phase, outcome).Inc()
}

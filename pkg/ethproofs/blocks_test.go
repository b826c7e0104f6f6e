package ethproofs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func blocksServer(t *testing.T, pages map[int][]BlockRow) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blocks", r.URL.Path)
		idx, err := strconv.Atoi(r.URL.Query().Get("page_index"))
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(BlocksPage{Rows: pages[idx]})
	}))
}

func row(n uint64) BlockRow {
	return BlockRow{BlockNumber: n}
}

func TestBlocksPage_Params(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"page_index":   r.URL.Query().Get("page_index"),
			"page_size":    r.URL.Query().Get("page_size"),
			"machine_type": r.URL.Query().Get("machine_type"),
		}
		_ = json.NewEncoder(w).Encode(BlocksPage{})
	}))
	defer srv.Close()

	c := NewDataClient(srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 1)))
	_, err := c.BlocksPage(context.Background(), 3, 50, "multi")
	require.NoError(t, err)

	assert.Equal(t, "3", gotQuery["page_index"])
	assert.Equal(t, "50", gotQuery["page_size"])
	assert.Equal(t, "multi", gotQuery["machine_type"])
}

func TestFetchBlocks_StopsOnShortPage(t *testing.T) {
	srv := blocksServer(t, map[int][]BlockRow{
		0: {row(1), row(2)},
		1: {row(3)}, // short page ends pagination
		2: {row(4), row(5)},
	})
	defer srv.Close()

	c := NewDataClient(srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 1)))
	rows, err := c.FetchBlocks(context.Background(), 10, 2, "multi")
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, uint64(3), rows[2].BlockNumber)
}

func TestFetchBlocks_ReturnsPartialOnError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(BlocksPage{Rows: []BlockRow{row(1), row(2)}})
	}))
	defer srv.Close()

	c := NewDataClient(srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 1)))
	rows, err := c.FetchBlocks(context.Background(), 5, 2, "multi")
	require.Error(t, err)
	assert.Len(t, rows, 2)
}

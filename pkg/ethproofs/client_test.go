package ethproofs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitQueued(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"proof_id": 77})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key")
	proofID, err := c.SubmitQueued(context.Background(), 23946500, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(77), proofID)
	assert.Equal(t, "/proofs/queued", gotPath)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, float64(23946500), gotBody["block_number"])
	assert.Equal(t, float64(1), gotBody["cluster_id"])
}

func TestSubmitProved_PayloadShape(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proofs/proved", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"proof_id": 5})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	_, err := c.SubmitProved(context.Background(), ProvedReport{
		BlockNumber:   23946500,
		ClusterID:     1,
		ProvingTimeMS: 60000,
		ProvingCycles: 200000000,
		Proof:         "cHJvb2Y=",
		VerifierID:    "powdr_verifier",
	})
	require.NoError(t, err)

	assert.Equal(t, float64(60000), gotBody["proving_time"])
	assert.Equal(t, float64(200000000), gotBody["proving_cycles"])
	assert.Equal(t, "cHJvb2Y=", gotBody["proof"])
	assert.Equal(t, "powdr_verifier", gotBody["verifier_id"])
}

func TestSubmit_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong")
	_, err := c.SubmitProving(context.Background(), 100, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClusters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clusters", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "nickname": "powdr-OpenVM"},
			{"id": 9, "nickname": "other"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")

	clusters, err := c.Clusters(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, int64(1), clusters[0].ID)

	ok, err := c.HasCluster(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasCluster(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

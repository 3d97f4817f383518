package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsgraph/extractor/pkg/httpretry"
)

func fastPolicy() httpretry.Policy {
	return httpretry.Policy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func TestClient_FindSimilarEntity_FiltersSortsAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/find_similar_entity", r.URL.Path)
		json.NewEncoder(w).Encode([]Candidate{
			{ID: "1", CanonicalName: "a", Score: 0.5},
			{ID: "2", CanonicalName: "b", Score: 0.95},
			{ID: "3", CanonicalName: "c", Score: 0.81},
			{ID: "4", CanonicalName: "d", Score: 0.82},
			{ID: "5", CanonicalName: "e", Score: 0.9},
			{ID: "6", CanonicalName: "f", Score: 0.99},
			{ID: "7", CanonicalName: "g", Score: 0.8},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", fastPolicy(), nil)
	got, err := c.FindSimilarEntity(context.Background(), "Acme", "ORGANIZATION", SimilarityThreshold)
	require.NoError(t, err)
	require.Len(t, got, MaxCandidates)
	assert.Equal(t, "6", got[0].ID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	for _, cand := range got {
		assert.GreaterOrEqual(t, cand.Score, SimilarityThreshold)
	}
}

func TestClient_AtomicInsertArticle_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/atomic_insert_article", r.URL.Path)
		json.NewEncoder(w).Encode(InsertResult{Status: "ok", Counts: map[string]int{"facts": 2}})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", fastPolicy(), nil)
	res, err := c.AtomicInsertArticle(context.Background(), json.RawMessage(`{"article":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 2, res.Counts["facts"])
}

func TestClient_AtomicInsert_ValidationErrorDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bad payload"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", fastPolicy(), nil)
	_, err := c.AtomicInsertArticle(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 1, calls)
}

func TestClient_AtomicInsert_TransientErrorRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(InsertResult{Status: "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", fastPolicy(), nil)
	res, err := c.AtomicInsertFragment(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 2, calls)
}

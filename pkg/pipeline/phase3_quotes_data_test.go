package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/fragment"
	"github.com/newsgraph/extractor/pkg/llmclient"
	"github.com/newsgraph/extractor/pkg/promptstore"
)

// TestQuotesAndData_DropsDanglingReferences implements Scenario D from
// the testable-properties section: Phase 2 emits facts {1,2} and
// entities {1,2}; the mocked Phase 3 response references entity_id=99,
// which must be dropped with a dangling-reference warning while other
// valid quotes persist.
func TestQuotesAndData_DropsDanglingReferences(t *testing.T) {
	body := `{
		"quotes": [
			{"text": "This is fine.", "emitter_entity_id": 1, "relevance": 4},
			{"text": "Dangling one.", "emitter_entity_id": 99, "relevance": 3}
		],
		"quantitative_data": []
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": body}}}})
		w.Write(payload)
	}))
	defer srv.Close()

	store := newTestStore(t, map[string]string{promptstore.QuotesDataTemplate: "{{CONTENT}} {{STEP_1_JSON}}"})
	phase := &QuotesAndData{
		Prompts:   store,
		LLM:       llmclient.New(srv.URL, "key", fastRetryPolicy(), nil),
		ModelID:   "m",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	}
	proc := fragment.New("item-1")

	phase2 := &extraction.Phase2Result{
		Facts:    []extraction.Fact{{SequentialID: 1}, {SequentialID: 2}},
		Entities: []extraction.Entity{{SequentialID: 1}, {SequentialID: 2}},
	}

	result := phase.Run(context.Background(), testMeta(), "text", phase2, proc)
	require.Len(t, result.Quotes, 1)
	assert.Equal(t, "This is fine.", result.Quotes[0].Text)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, extraction.WarnDanglingReference, result.Warnings[0].Code)
}

func TestQuotesAndData_FallbackOnLLMFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newTestStore(t, map[string]string{promptstore.QuotesDataTemplate: "{{CONTENT}} {{STEP_1_JSON}}"})
	phase := &QuotesAndData{
		Prompts:   store,
		LLM:       llmclient.New(srv.URL, "key", fastRetryPolicy(), nil),
		ModelID:   "m",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	}
	proc := fragment.New("item-1")
	phase2 := &extraction.Phase2Result{}

	result := phase.Run(context.Background(), testMeta(), "text", phase2, proc)
	assert.Empty(t, result.Quotes)
	assert.Empty(t, result.Data)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, extraction.WarnPhaseFallback, result.Warnings[0].Code)
}

func TestQuotesAndData_EnforcesMinimumLengths(t *testing.T) {
	body := `{"quotes": [{"text": "hi", "relevance": 3}], "quantitative_data": [{"indicator": "ab", "value": 1.0, "category": "economic"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": body}}}})
		w.Write(payload)
	}))
	defer srv.Close()

	store := newTestStore(t, map[string]string{promptstore.QuotesDataTemplate: "{{CONTENT}} {{STEP_1_JSON}}"})
	phase := &QuotesAndData{
		Prompts:   store,
		LLM:       llmclient.New(srv.URL, "key", fastRetryPolicy(), nil),
		ModelID:   "m",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	}
	proc := fragment.New("item-1")
	phase2 := &extraction.Phase2Result{}

	result := phase.Run(context.Background(), testMeta(), "text", phase2, proc)
	assert.Empty(t, result.Quotes)
	assert.Empty(t, result.Data)
	assert.Len(t, result.Warnings, 2)
}

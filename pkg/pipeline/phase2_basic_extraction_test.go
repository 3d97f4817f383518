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

func TestBasicExtraction_AllocatesSequentialIDsAndDropsInvalid(t *testing.T) {
	body := `{
		"facts": [
			{"content": "Tax reform announced", "date": {"start": "2026-01-01", "end": null}, "temporal_precision": "day", "type": "ANNOUNCEMENT", "countries": ["US"]},
			{"content": "", "temporal_precision": "day", "type": "ANNOUNCEMENT"},
			{"content": "bad type fact", "temporal_precision": "day", "type": "NOT_A_TYPE"}
		],
		"entities": [
			{"name": "Ministry of Finance", "type": "INSTITUTION"},
			{"name": "President Smith", "type": "PERSON"},
			{"name": "Bad Entity", "type": "NOT_A_TYPE"}
		]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":` + toJSONString(body) + `}}]}`))
	}))
	defer srv.Close()

	store := newTestStore(t, map[string]string{promptstore.BasicExtractionTemplate: "{{CONTENT}}"})
	phase := &BasicExtraction{
		Prompts:   store,
		LLM:       llmclient.New(srv.URL, "key", fastRetryPolicy(), nil),
		ModelID:   "m",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	}
	proc := fragment.New("item-1")

	result := phase.Run(context.Background(), testMeta(), "body text", proc)
	require.Len(t, result.Facts, 1)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, 1, result.Facts[0].SequentialID)
	assert.Equal(t, 1, result.Entities[0].SequentialID)
	assert.Equal(t, 2, result.Entities[1].SequentialID)
	assert.Len(t, result.Warnings, 3)
	for _, w := range result.Warnings {
		assert.Equal(t, extraction.WarnMalformedRecord, w.Code)
	}
}

func TestBasicExtraction_FallbackOnLLMFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newTestStore(t, map[string]string{promptstore.BasicExtractionTemplate: "{{CONTENT}}"})
	phase := &BasicExtraction{
		Prompts:   store,
		LLM:       llmclient.New(srv.URL, "key", fastRetryPolicy(), nil),
		ModelID:   "m",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	}
	proc := fragment.New("item-1")

	result := phase.Run(context.Background(), testMeta(), "body text", proc)
	assert.Empty(t, result.Facts)
	assert.Empty(t, result.Entities)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, extraction.WarnPhaseFallback, result.Warnings[0].Code)
}

// toJSONString renders s as a Go/JSON string literal for embedding raw
// JSON inside a mocked chat-completion envelope in tests.
func toJSONString(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

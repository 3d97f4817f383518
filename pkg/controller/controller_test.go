package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsgraph/extractor/pkg/auditstore"
	"github.com/newsgraph/extractor/pkg/directory"
	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/httpretry"
	"github.com/newsgraph/extractor/pkg/jobtracker"
	"github.com/newsgraph/extractor/pkg/llmclient"
	"github.com/newsgraph/extractor/pkg/payload"
	"github.com/newsgraph/extractor/pkg/pipeline"
	"github.com/newsgraph/extractor/pkg/promptstore"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".txt"), []byte(content), 0o644))
}

func jsonChatHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": body}}}})
		w.Write(resp)
	}
}

func unavailableHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusServiceUnavailable)
}

func quickPolicy() httpretry.Policy {
	return httpretry.Policy{MaxAttempts: 1, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}
}

// harnessConfig lets each test swap in a per-phase LLM handler, so a
// single phase's outage can be simulated without special-casing prompt
// content. Each phase in this controller owns its own *llmclient.Client,
// which makes this straightforward: one httptest server per phase.
type harnessConfig struct {
	triageHandler    http.HandlerFunc
	basicHandler     http.HandlerFunc
	quotesHandler    http.HandlerFunc
	relationsHandler http.HandlerFunc
}

func newHarness(t *testing.T, cfg harnessConfig) *Controller {
	t.Helper()
	dir := t.TempDir()
	writeTemplate(t, dir, promptstore.TriageTemplate, "{{CONTENT}}")
	writeTemplate(t, dir, promptstore.BasicExtractionTemplate, "{{CONTENT}}")
	writeTemplate(t, dir, promptstore.QuotesDataTemplate, "{{CONTENT}} {{STEP_1_JSON}}")
	writeTemplate(t, dir, promptstore.RelationsTemplate, "{{BASIC_ELEMENTS_NORMALIZED}} {{COMPLEMENTARY_ELEMENTS}}")
	store := promptstore.New(dir)

	triageSrv := httptest.NewServer(cfg.triageHandler)
	basicSrv := httptest.NewServer(cfg.basicHandler)
	quotesSrv := httptest.NewServer(cfg.quotesHandler)
	relationsSrv := httptest.NewServer(cfg.relationsHandler)
	dirSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/find_similar_entity":
			w.Write([]byte(`[]`))
		default:
			resp, _ := json.Marshal(map[string]any{"status": "ok", "inserted_ids": map[string]any{}, "counts": map[string]int{}})
			w.Write(resp)
		}
	}))

	t.Cleanup(func() {
		triageSrv.Close()
		basicSrv.Close()
		quotesSrv.Close()
		relationsSrv.Close()
		dirSrv.Close()
	})

	dirClient := directory.New(dirSrv.URL, "key", quickPolicy(), nil)

	return &Controller{
		Triage:        &pipeline.Triage{Prompts: store, LLM: llmclient.New(triageSrv.URL, "key", quickPolicy(), nil), WorkingLanguage: "en", ModelID: "m", MaxTokens: 100, Timeout: 5 * time.Second},
		BasicExtract:  &pipeline.BasicExtraction{Prompts: store, LLM: llmclient.New(basicSrv.URL, "key", quickPolicy(), nil), ModelID: "m", MaxTokens: 100, Timeout: 5 * time.Second},
		QuotesAndData: &pipeline.QuotesAndData{Prompts: store, LLM: llmclient.New(quotesSrv.URL, "key", quickPolicy(), nil), ModelID: "m", MaxTokens: 100, Timeout: 5 * time.Second},
		Relations:     &pipeline.NormalizationAndRelations{Prompts: store, LLM: llmclient.New(relationsSrv.URL, "key", quickPolicy(), nil), Directory: dirClient, ModelID: "m", MaxTokens: 100, Timeout: 5 * time.Second},
		Payload:       payload.New(),
		Directory:     dirClient,
		Jobs:          jobtracker.New(100, time.Hour, nil),
		AsyncThresholdChars: 10000,
	}
}

func testArticle(text string) *extraction.Article {
	return &extraction.Article{
		URL:         "https://example.com/a",
		StoragePath: "bucket/2026/01/15/article.html.gz",
		Outlet:      "Daily Times",
		Country:     "US",
		OutletType:  "newspaper",
		Headline:    "Government announces tax reform",
		PublishedAt: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		FullText:    text,
	}
}

const triageRelevantBody = `{"is_relevant":true,"justification":"about tax policy","category":"politics","keywords":["tax"],"confidence":0.9}`
const basicExtractionBody = `{"facts":[{"content":"Tax reform announced today","temporal_precision":"day","type":"ANNOUNCEMENT"}],"entities":[{"name":"Ministry of Finance","type":"INSTITUTION"}]}`
const quotesBody = `{"quotes":[{"text":"We will act.","emitter_entity_id":1,"relevance":4}],"quantitative_data":[]}`
const emptyRelationsBody = `{"fact_entity":[],"fact_fact":[],"entity_entity":[],"contradictions":[]}`

func TestController_ProcessArticle_SyncHappyPath(t *testing.T) {
	c := newHarness(t, harnessConfig{
		triageHandler:    jsonChatHandler(triageRelevantBody),
		basicHandler:     jsonChatHandler(basicExtractionBody),
		quotesHandler:    jsonChatHandler(quotesBody),
		relationsHandler: jsonChatHandler(emptyRelationsBody),
	})

	jobID, result, err := c.ProcessArticle(context.Background(), testArticle("short article body"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, extraction.OutcomeSuccess, result.Outcome)
	assert.False(t, result.Partial)
	assert.Equal(t, 1, result.Counts.Facts)
	assert.Equal(t, 1, result.Counts.Entities)
	assert.Equal(t, 1, result.Counts.Quotes)

	snap, err := c.Jobs.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobtracker.StateCompleted, snap.State)
}

// stubAuditRecorder captures the last record it receives and signals
// recv so tests don't have to poll for the background write (recordAudit
// fires from its own goroutine to keep a slow audit store off the
// caller's critical path).
type stubAuditRecorder struct {
	recv chan auditstore.Record
}

func newStubAuditRecorder() *stubAuditRecorder {
	return &stubAuditRecorder{recv: make(chan auditstore.Record, 1)}
}

func (s *stubAuditRecorder) RecordItem(ctx context.Context, rec auditstore.Record) error {
	s.recv <- rec
	return nil
}

func TestController_ProcessArticle_RecordsAuditRowOnSuccess(t *testing.T) {
	c := newHarness(t, harnessConfig{
		triageHandler:    jsonChatHandler(triageRelevantBody),
		basicHandler:     jsonChatHandler(basicExtractionBody),
		quotesHandler:    jsonChatHandler(quotesBody),
		relationsHandler: jsonChatHandler(emptyRelationsBody),
	})
	recorder := newStubAuditRecorder()
	c.Audit = recorder

	_, result, err := c.ProcessArticle(context.Background(), testArticle("short article body"))
	require.NoError(t, err)

	select {
	case rec := <-recorder.recv:
		assert.Equal(t, result.RequestID, rec.RequestID)
		assert.Equal(t, string(extraction.ItemKindArticle), rec.ItemKind)
		assert.Equal(t, "success", rec.Outcome)
		assert.False(t, rec.Partial)
		assert.Contains(t, rec.PhaseDurations, "triage")
		assert.Contains(t, rec.PhaseDurations, "relations")
	case <-time.After(2 * time.Second):
		t.Fatal("audit recorder was never called")
	}
}

func TestController_ProcessArticle_RejectedShortCircuits(t *testing.T) {
	rejectedBody := `{"is_relevant":false,"justification":"sports news","category":"sports","keywords":[],"confidence":0.8}`
	c := newHarness(t, harnessConfig{
		triageHandler:    jsonChatHandler(rejectedBody),
		basicHandler:     unavailableHandler,
		quotesHandler:    unavailableHandler,
		relationsHandler: unavailableHandler,
	})

	_, result, err := c.ProcessArticle(context.Background(), testArticle("sports scores from yesterday"))
	require.NoError(t, err)
	assert.Equal(t, extraction.OutcomeRejected, result.Outcome)
}

// TestController_Phase3OutageStillRunsPhase4 implements Scenario C: the
// Phase 3 LLM call fails on every attempt, yet Phase 4 still runs on
// Phase 2's output and the item persists as partial with a
// phase-fallback warning, rather than failing outright.
func TestController_Phase3OutageStillRunsPhase4(t *testing.T) {
	c := newHarness(t, harnessConfig{
		triageHandler:    jsonChatHandler(triageRelevantBody),
		basicHandler:     jsonChatHandler(basicExtractionBody),
		quotesHandler:    unavailableHandler,
		relationsHandler: jsonChatHandler(emptyRelationsBody),
	})

	_, result, err := c.ProcessArticle(context.Background(), testArticle("short article body"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, extraction.OutcomePartial, result.Outcome)
	assert.True(t, result.Partial)
	assert.Equal(t, 0, result.Counts.Quotes)

	var sawFallback bool
	for _, w := range result.Warnings {
		if w.Code == extraction.WarnPhaseFallback {
			sawFallback = true
		}
	}
	assert.True(t, sawFallback)
}

// TestController_LongArticleDispatchesAsync implements Scenario E: an
// article whose text exceeds the async threshold returns a job id
// immediately and the job transitions pending -> processing ->
// completed as the background goroutine runs.
func TestController_LongArticleDispatchesAsync(t *testing.T) {
	c := newHarness(t, harnessConfig{
		triageHandler:    jsonChatHandler(triageRelevantBody),
		basicHandler:     jsonChatHandler(basicExtractionBody),
		quotesHandler:    jsonChatHandler(quotesBody),
		relationsHandler: jsonChatHandler(emptyRelationsBody),
	})
	c.AsyncThresholdChars = 10

	longText := "this article body is longer than the ten character threshold"
	jobID, result, err := c.ProcessArticle(context.Background(), testArticle(longText))
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		snap, err := c.Jobs.Get(jobID)
		return err == nil && snap.State == jobtracker.StateCompleted
	}, time.Second, 5*time.Millisecond)
}

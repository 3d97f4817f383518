// Package controller implements the Controller (spec §4.10): it
// orchestrates a single item through Phases 1-4, the Payload Builder,
// and the atomic-insert call, dispatching synchronously or to a
// background worker pool depending on text length. Grounded on the
// teacher's pkg/queue.WorkerPool (background dispatch, graceful
// lifecycle, per-item isolation) simplified to a fixed-size in-process
// pool (asyncpool.go) instead of a claimed-row worker pool, since this
// domain has no persisted work queue to claim from.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsgraph/extractor/pkg/apperrors"
	"github.com/newsgraph/extractor/pkg/auditstore"
	"github.com/newsgraph/extractor/pkg/directory"
	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/fragment"
	"github.com/newsgraph/extractor/pkg/jobtracker"
	"github.com/newsgraph/extractor/pkg/payload"
	"github.com/newsgraph/extractor/pkg/pipeline"
)

// Result is the outcome of running the full pipeline over one item.
type Result struct {
	RequestID    string                   `json:"request_id"`
	Outcome      extraction.Outcome       `json:"outcome"`
	Partial      bool                     `json:"partial"`
	Warnings     []extraction.Warning     `json:"warnings,omitempty"`
	PhaseTimings map[string]time.Duration `json:"phase_timings"`
	Counts       Counts                   `json:"counts"`
	InsertResult *directory.InsertResult  `json:"insert_result,omitempty"`
	FailureCause string                   `json:"failure_cause,omitempty"`
}

// Counts mirrors fragment.Counts for surfacing in API responses without
// exposing the internal processor type.
type Counts struct {
	Facts    int `json:"facts"`
	Entities int `json:"entities"`
	Quotes   int `json:"quotes"`
	Data     int `json:"data"`
}

// AuditRecorder persists one row per processed item. Satisfied by
// *auditstore.Store; kept as an interface so tests can swap in a stub
// that records calls instead of hitting Postgres.
type AuditRecorder interface {
	RecordItem(ctx context.Context, rec auditstore.Record) error
}

// Controller wires the four pipeline phases, the Payload Builder, and
// the directory client into the single end-to-end item flow.
type Controller struct {
	Triage        *pipeline.Triage
	BasicExtract  *pipeline.BasicExtraction
	QuotesAndData *pipeline.QuotesAndData
	Relations     *pipeline.NormalizationAndRelations
	Payload       *payload.Builder
	Directory     *directory.Client
	Jobs          *jobtracker.Tracker

	// Audit records one row per processed item after run() completes,
	// regardless of outcome. Nil disables auditing (e.g. in tests).
	Audit AuditRecorder

	// AsyncThresholdChars is the text-length cutoff above which an item
	// is dispatched to a background worker instead of processed
	// synchronously (spec §4.10 step 2, default 10,000).
	AsyncThresholdChars int

	// AsyncPoolSize bounds concurrent background item processing.
	// Defaults to defaultAsyncPoolSize when unset.
	AsyncPoolSize int

	Logger *slog.Logger

	poolOnce sync.Once
	pool     *asyncPool
}

// asyncExecutor lazily creates the bounded worker pool backing
// asynchronous dispatch (spec §5 EXPANSION).
func (c *Controller) asyncExecutor() *asyncPool {
	c.poolOnce.Do(func() {
		c.pool = newAsyncPool(c.AsyncPoolSize)
	})
	return c.pool
}

// Shutdown stops accepting new background work and waits for any
// in-flight async item to finish processing. Safe to call even if no
// async item was ever dispatched.
func (c *Controller) Shutdown() {
	c.asyncExecutor().Stop()
}

// ProcessArticle runs the pipeline over a, synchronously if its text is
// short enough, asynchronously otherwise. In the async case the
// returned jobID identifies a job tracked by c.Jobs and result is nil;
// the caller is expected to answer with a 202 and the job id (spec
// §4.11, §8 Scenario E).
func (c *Controller) ProcessArticle(ctx context.Context, a *extraction.Article) (jobID string, result *Result, err error) {
	requestID := uuid.NewString()
	meta := extraction.ArticleMetadata(a)

	build := func(in payload.Input) (any, error) {
		return c.Payload.BuildArticle(a, in)
	}

	return c.dispatch(ctx, requestID, extraction.ItemKindArticle, meta, a.FullText, build)
}

// ProcessFragment runs the pipeline over f, following the same
// synchronous/asynchronous dispatch rule as ProcessArticle.
func (c *Controller) ProcessFragment(ctx context.Context, f *extraction.Fragment, ingestedAt time.Time) (jobID string, result *Result, err error) {
	requestID := uuid.NewString()
	meta := extraction.FragmentMetadata(f, ingestedAt)

	build := func(in payload.Input) (any, error) {
		return c.Payload.BuildFragment(f, in)
	}

	return c.dispatch(ctx, requestID, extraction.ItemKindFragment, meta, f.Text, build)
}

type payloadBuilderFunc func(payload.Input) (any, error)

func (c *Controller) dispatch(ctx context.Context, requestID string, kind extraction.ItemKind, meta extraction.SourceMetadata, text string, build payloadBuilderFunc) (string, *Result, error) {
	job := c.Jobs.Create(requestID)

	if len(text) <= c.AsyncThresholdChars {
		result := c.run(ctx, requestID, kind, meta, text, build)
		if result.Outcome == extraction.OutcomeFailed {
			c.Jobs.Fail(job.ID, result.FailureCause)
		} else {
			c.Jobs.Complete(job.ID, result)
		}
		return job.ID, result, nil
	}

	c.asyncExecutor().Submit(func(bgCtx context.Context) {
		c.Jobs.MarkProcessing(job.ID)
		result := c.run(bgCtx, requestID, kind, meta, text, build)
		if result.Outcome == extraction.OutcomeFailed {
			c.Jobs.Fail(job.ID, result.FailureCause)
		} else {
			c.Jobs.Complete(job.ID, result)
		}
	})

	return job.ID, nil, nil
}

// run executes Phases 1-4, the Payload Builder, and the atomic-insert
// call for a single item. It never resumes a failed phase from partial
// state: failure of phase N means phase N+1 runs on phase N's declared
// fallback value (spec §4.10).
func (c *Controller) run(ctx context.Context, requestID string, kind extraction.ItemKind, meta extraction.SourceMetadata, text string, build payloadBuilderFunc) *Result {
	logger := c.logger()
	timings := map[string]time.Duration{}
	result := &Result{RequestID: requestID, PhaseTimings: timings}

	defer c.recordAudit(kind, result)

	proc := fragment.New(requestID)

	start := time.Now()
	phase1 := c.Triage.Run(ctx, requestID, meta, text)
	timings["triage"] = time.Since(start)
	result.Warnings = append(result.Warnings, phase1.Warnings...)

	if phase1.Rejected() {
		result.Outcome = extraction.OutcomeRejected
		return result
	}

	workingText := phase1.TextForNextPhase()

	start = time.Now()
	phase2 := c.BasicExtract.Run(ctx, meta, workingText, proc)
	timings["basic_extraction"] = time.Since(start)
	result.Warnings = append(result.Warnings, phase2.Warnings...)

	start = time.Now()
	phase3 := c.QuotesAndData.Run(ctx, meta, workingText, phase2, proc)
	timings["quotes_data"] = time.Since(start)
	result.Warnings = append(result.Warnings, phase3.Warnings...)

	start = time.Now()
	phase4 := c.Relations.Run(ctx, meta, phase2, phase3, proc)
	timings["relations"] = time.Since(start)
	result.Warnings = append(result.Warnings, phase4.Warnings...)

	counts := proc.Counts()
	result.Counts = Counts{Facts: counts.Facts, Entities: counts.Entities, Quotes: counts.Quotes, Data: counts.Data}

	partial := hasFallback(phase2.Warnings) || hasFallback(phase3.Warnings) || hasFallback(phase4.Warnings)
	result.Partial = partial

	built, err := build(payload.Input{
		RequestID: requestID,
		Phase2:    phase2,
		Phase3:    phase3,
		Phase4:    phase4,
		Partial:   partial,
		Warnings:  result.Warnings,
	})
	if err != nil {
		logger.Error("payload assembly failed", "request_id", requestID, "error", err)
		result.Outcome = extraction.OutcomeFailed
		result.FailureCause = err.Error()
		return result
	}

	rawPayload, err := json.Marshal(built)
	if err != nil {
		result.Outcome = extraction.OutcomeFailed
		result.FailureCause = fmt.Sprintf("encoding payload: %v", err)
		return result
	}

	insertResult, err := c.insert(ctx, kind, rawPayload)
	if err != nil {
		logger.Error("atomic insert failed", "request_id", requestID, "error", err)
		result.Outcome = extraction.OutcomeFailed
		result.FailureCause = err.Error()
		return result
	}
	result.InsertResult = insertResult

	if partial {
		result.Outcome = extraction.OutcomePartial
	} else {
		result.Outcome = extraction.OutcomeSuccess
	}
	return result
}

func (c *Controller) insert(ctx context.Context, kind extraction.ItemKind, raw json.RawMessage) (*directory.InsertResult, error) {
	switch kind {
	case extraction.ItemKindArticle:
		return c.Directory.AtomicInsertArticle(ctx, raw)
	case extraction.ItemKindFragment:
		return c.Directory.AtomicInsertFragment(ctx, raw)
	default:
		return nil, apperrors.Storage(fmt.Sprintf("unknown item kind %q", kind), nil)
	}
}

func hasFallback(warnings []extraction.Warning) bool {
	for _, w := range warnings {
		if w.Code == extraction.WarnPhaseFallback {
			return true
		}
	}
	return false
}

// recordAudit persists one audit row for result after run completes,
// regardless of outcome (spec §2 EXPANSION: the audit store is written
// once per item after the controller finishes). Runs in its own
// goroutine with a bounded timeout so a slow or unreachable audit
// database never delays the caller's response.
func (c *Controller) recordAudit(kind extraction.ItemKind, result *Result) {
	if c.Audit == nil {
		return
	}

	warningCounts := map[string]int{}
	for _, w := range result.Warnings {
		warningCounts[w.Phase]++
	}

	var persistedIDs map[string]any
	if result.InsertResult != nil {
		persistedIDs = result.InsertResult.InsertedIDs
	}

	rec := auditstore.Record{
		RequestID:      result.RequestID,
		ItemKind:       string(kind),
		Outcome:        string(result.Outcome),
		Partial:        result.Partial,
		PhaseDurations: result.PhaseTimings,
		PhaseWarnings:  warningCounts,
		PersistedIDs:   persistedIDs,
		FailureCause:   result.FailureCause,
	}

	logger := c.logger()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Audit.RecordItem(ctx, rec); err != nil {
			logger.Error("audit record write failed", "request_id", result.RequestID, "error", err)
		}
	}()
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

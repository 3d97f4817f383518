package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/fragment"
	"github.com/newsgraph/extractor/pkg/llmclient"
	"github.com/newsgraph/extractor/pkg/promptstore"
)

type rawQuote struct {
	Text            string  `json:"text"`
	EmitterEntityID *int    `json:"emitter_entity_id"`
	ContextFactID   *int    `json:"context_fact_id"`
	Date            *string `json:"date"`
	ContextSnippet  string  `json:"context_snippet"`
	Relevance       int     `json:"relevance"`
}

type rawDatum struct {
	FactID            *int     `json:"fact_id"`
	Indicator         string   `json:"indicator"`
	Value             float64  `json:"value"`
	Unit              string   `json:"unit"`
	Category          string   `json:"category"`
	GeographicScope   []string `json:"geographic_scope"`
	PeriodStart       *string  `json:"reference_period_start"`
	PeriodEnd         *string  `json:"reference_period_end"`
	PeriodType        string   `json:"period_type"`
	PreviousValue     *float64 `json:"previous_value"`
	AbsoluteVariation *float64 `json:"absolute_variation"`
	PercentVariation  *float64 `json:"percent_variation"`
	Trend             string   `json:"trend"`
}

type quotesDataResponse struct {
	Quotes            []rawQuote `json:"quotes"`
	QuantitativeData  []rawDatum `json:"quantitative_data"`
}

// QuotesAndData runs Phase 3 (spec §4.7).
type QuotesAndData struct {
	Prompts     *promptstore.Store
	LLM         *llmclient.Client
	ModelID     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Run executes Phase 3. phase2 supplies the fact/entity id universe
// quotes and data may reference; proc is the same Fragment Processor
// instance used in Phase 2.
func (q *QuotesAndData) Run(ctx context.Context, meta extraction.SourceMetadata, text string, phase2 *extraction.Phase2Result, proc *fragment.Processor) *extraction.Phase3Result {
	logger := q.logger()
	result := &extraction.Phase3Result{}

	step1JSON, err := json.Marshal(map[string]any{
		"facts":    phase2.Facts,
		"entities": phase2.Entities,
	})
	if err != nil {
		return q.fallback(result, err)
	}

	prompt, err := q.Prompts.Render(promptstore.QuotesDataTemplate, map[string]string{
		"TITLE":          meta.Title,
		"SOURCE_TYPE":    meta.SourceType,
		"ORIGIN_COUNTRY": meta.OriginCountry,
		"SOURCE_DATE":    meta.SourceDate.Format("2006-01-02"),
		"CONTENT":        text,
		"STEP_1_JSON":    string(step1JSON),
	})
	if err != nil {
		logger.Warn("quotes_data prompt render failed, applying fallback", "error", err)
		return q.fallback(result, err)
	}

	raw, err := q.LLM.Generate(ctx, llmclient.Request{
		ModelID:     q.ModelID,
		Prompt:      prompt,
		Temperature: q.Temperature,
		MaxTokens:   q.MaxTokens,
		Timeout:     q.Timeout,
	})
	if err != nil {
		logger.Warn("quotes_data LLM call failed, applying fallback", "error", err)
		return q.fallback(result, err)
	}

	var parsed quotesDataResponse
	if err := json.Unmarshal(llmclient.RepairAndExtract(raw), &parsed); err != nil {
		logger.Warn("quotes_data response unparseable, applying fallback", "error", err)
		return q.fallback(result, err)
	}

	factIDs := fragment.NewIDSet(factIDsOf(phase2.Facts))
	entityIDs := fragment.NewIDSet(entityIDsOf(phase2.Entities))

	for _, rq := range parsed.Quotes {
		quote, warn := q.validateQuote(rq, factIDs, entityIDs)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		quote.SequentialID = proc.NextQuoteID()
		result.Quotes = append(result.Quotes, *quote)
	}

	for _, rd := range parsed.QuantitativeData {
		datum, warn := q.validateDatum(rd, factIDs)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		datum.SequentialID = proc.NextDatumID()
		result.Data = append(result.Data, *datum)
	}

	return result
}

func (q *QuotesAndData) validateQuote(rq rawQuote, factIDs, entityIDs fragment.IDSet) (*extraction.Quote, *extraction.Warning) {
	if len(rq.Text) < extraction.MinQuoteLength {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnMalformedRecord, Message: "quote text shorter than minimum length"}
	}
	if !entityIDs.HasPtr(rq.EmitterEntityID) {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("quote references unknown emitter_entity_id=%d", deref(rq.EmitterEntityID))}
	}
	if !factIDs.HasPtr(rq.ContextFactID) {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("quote references unknown context_fact_id=%d", deref(rq.ContextFactID))}
	}
	relevance := rq.Relevance
	if relevance == 0 {
		relevance = extraction.DefaultQuoteRelevance
	}
	return &extraction.Quote{
		Text:            rq.Text,
		EmitterEntityID: rq.EmitterEntityID,
		ContextFactID:   rq.ContextFactID,
		Date:            rq.Date,
		ContextSnippet:  rq.ContextSnippet,
		Relevance:       relevance,
	}, nil
}

func (q *QuotesAndData) validateDatum(rd rawDatum, factIDs fragment.IDSet) (*extraction.QuantitativeDatum, *extraction.Warning) {
	if len(rd.Indicator) < extraction.MinIndicatorLength {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnMalformedRecord, Message: "indicator shorter than minimum length"}
	}
	if !factIDs.HasPtr(rd.FactID) {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("quantitative datum references unknown fact_id=%d", deref(rd.FactID))}
	}
	category := extraction.DatumCategory(rd.Category)
	if !extraction.ValidDatumCategory(category) {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnMalformedRecord, Message: fmt.Sprintf("quantitative datum has invalid category %q", rd.Category)}
	}
	trend := extraction.Trend(rd.Trend)
	if !extraction.ValidTrend(trend) {
		return nil, &extraction.Warning{Phase: "quotes_data", Code: extraction.WarnMalformedRecord, Message: fmt.Sprintf("quantitative datum has invalid trend %q", rd.Trend)}
	}
	return &extraction.QuantitativeDatum{
		FactID:    rd.FactID,
		Indicator: rd.Indicator,
		Value:     rd.Value,
		Unit:      rd.Unit,
		Metadata: extraction.DatumMetadata{
			Category:          category,
			GeographicScope:   rd.GeographicScope,
			PeriodStart:       rd.PeriodStart,
			PeriodEnd:         rd.PeriodEnd,
			PeriodType:        rd.PeriodType,
			PreviousValue:     rd.PreviousValue,
			AbsoluteVariation: rd.AbsoluteVariation,
			PercentVariation:  rd.PercentVariation,
			Trend:             trend,
		},
	}, nil
}

// fallback implements spec §4.7 step 7: empty lists, warning emitted.
func (q *QuotesAndData) fallback(result *extraction.Phase3Result, cause error) *extraction.Phase3Result {
	result.Warnings = append(result.Warnings, extraction.Warning{
		Phase:   "quotes_data",
		Code:    extraction.WarnPhaseFallback,
		Message: fmt.Sprintf("quotes/data extraction unavailable: %v", cause),
	})
	return result
}

func factIDsOf(facts []extraction.Fact) []int {
	ids := make([]int, len(facts))
	for i, f := range facts {
		ids[i] = f.SequentialID
	}
	return ids
}

func entityIDsOf(entities []extraction.Entity) []int {
	ids := make([]int, len(entities))
	for i, e := range entities {
		ids[i] = e.SequentialID
	}
	return ids
}

func deref(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func (q *QuotesAndData) logger() *slog.Logger {
	if q.Logger != nil {
		return q.Logger
	}
	return slog.Default()
}

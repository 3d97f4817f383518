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

type rawDateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

func (r rawDateRange) toDateRange() extraction.DateRange {
	return extraction.DateRange{Start: r.Start, End: r.End}
}

type rawFact struct {
	Content           string       `json:"content"`
	Date              rawDateRange `json:"date"`
	TemporalPrecision string       `json:"temporal_precision"`
	Type              string       `json:"type"`
	Countries         []string     `json:"countries"`
	Regions           []string     `json:"regions"`
	Cities            []string     `json:"cities"`
	Tags              []string     `json:"tags"`
	IsFutureEvent     bool         `json:"is_future_event"`
	SchedulingState   string       `json:"scheduling_state"`
}

type rawEntity struct {
	Name             string        `json:"name"`
	Type             string        `json:"type"`
	Description      string        `json:"description"`
	Aliases          []string      `json:"aliases"`
	BirthRange       *rawDateRange `json:"birth_range"`
	DissolutionRange *rawDateRange `json:"dissolution_range"`
}

type basicExtractionResponse struct {
	Facts    []rawFact   `json:"facts"`
	Entities []rawEntity `json:"entities"`
}

// BasicExtraction runs Phase 2 (spec §4.6).
type BasicExtraction struct {
	Prompts     *promptstore.Store
	LLM         *llmclient.Client
	ModelID     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Run executes Phase 2 against Phase 1's forwarded text, allocating
// sequential ids through proc.
func (b *BasicExtraction) Run(ctx context.Context, meta extraction.SourceMetadata, text string, proc *fragment.Processor) *extraction.Phase2Result {
	logger := b.logger()
	result := &extraction.Phase2Result{}

	prompt, err := b.Prompts.Render(promptstore.BasicExtractionTemplate, map[string]string{
		"TITLE":          meta.Title,
		"SOURCE_TYPE":    meta.SourceType,
		"ORIGIN_COUNTRY": meta.OriginCountry,
		"SOURCE_DATE":    meta.SourceDate.Format("2006-01-02"),
		"CONTENT":        text,
	})
	if err != nil {
		logger.Warn("basic_extraction prompt render failed, applying fallback", "error", err)
		return b.fallback(result, err)
	}

	raw, err := b.LLM.Generate(ctx, llmclient.Request{
		ModelID:     b.ModelID,
		Prompt:      prompt,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
		Timeout:     b.Timeout,
	})
	if err != nil {
		logger.Warn("basic_extraction LLM call failed, applying fallback", "error", err)
		return b.fallback(result, err)
	}

	var parsed basicExtractionResponse
	if err := json.Unmarshal(llmclient.RepairAndExtract(raw), &parsed); err != nil {
		logger.Warn("basic_extraction response unparseable, applying fallback", "error", err)
		return b.fallback(result, err)
	}

	for _, rf := range parsed.Facts {
		fact, warn := validateFact(rf)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		fact.SequentialID = proc.NextFactID()
		result.Facts = append(result.Facts, *fact)
	}

	for _, re := range parsed.Entities {
		entity, warn := validateEntity(re)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		entity.SequentialID = proc.NextEntityID()
		result.Entities = append(result.Entities, *entity)
	}

	return result
}

// fallback implements spec §4.6 step 5: empty lists, loud warning, the
// controller continues.
func (b *BasicExtraction) fallback(result *extraction.Phase2Result, cause error) *extraction.Phase2Result {
	result.Warnings = append(result.Warnings, extraction.Warning{
		Phase:   "basic_extraction",
		Code:    extraction.WarnPhaseFallback,
		Message: fmt.Sprintf("basic extraction unavailable: %v", cause),
	})
	return result
}

func validateFact(rf rawFact) (*extraction.Fact, *extraction.Warning) {
	factType := extraction.FactType(rf.Type)
	if !extraction.ValidFactType(factType) {
		return nil, &extraction.Warning{Phase: "basic_extraction", Code: extraction.WarnMalformedRecord, Message: fmt.Sprintf("fact has invalid type %q", rf.Type)}
	}
	precision := extraction.TemporalPrecision(rf.TemporalPrecision)
	if !extraction.ValidTemporalPrecision(precision) {
		return nil, &extraction.Warning{Phase: "basic_extraction", Code: extraction.WarnMalformedRecord, Message: fmt.Sprintf("fact has invalid temporal_precision %q", rf.TemporalPrecision)}
	}
	if rf.Content == "" {
		return nil, &extraction.Warning{Phase: "basic_extraction", Code: extraction.WarnMalformedRecord, Message: "fact missing content"}
	}
	return &extraction.Fact{
		Content:           rf.Content,
		OccurrenceRange:   rf.Date.toDateRange(),
		TemporalPrecision: precision,
		Type:              factType,
		Countries:         rf.Countries,
		Regions:           rf.Regions,
		Cities:            rf.Cities,
		Tags:              rf.Tags,
		IsFutureEvent:     rf.IsFutureEvent,
		SchedulingState:   rf.SchedulingState,
		Importance:        extraction.DefaultImportance,
	}, nil
}

func validateEntity(re rawEntity) (*extraction.Entity, *extraction.Warning) {
	entityType := extraction.EntityType(re.Type)
	if !extraction.ValidEntityType(entityType) {
		return nil, &extraction.Warning{Phase: "basic_extraction", Code: extraction.WarnMalformedRecord, Message: fmt.Sprintf("entity has invalid type %q", re.Type)}
	}
	if re.Name == "" {
		return nil, &extraction.Warning{Phase: "basic_extraction", Code: extraction.WarnMalformedRecord, Message: "entity missing name"}
	}
	entity := &extraction.Entity{
		Name:        re.Name,
		Type:        entityType,
		Description: re.Description,
		Aliases:     re.Aliases,
		Relevance:   extraction.DefaultImportance,
	}
	if re.BirthRange != nil {
		dr := re.BirthRange.toDateRange()
		entity.BirthRange = &dr
	}
	if re.DissolutionRange != nil {
		dr := re.DissolutionRange.toDateRange()
		entity.Dissolution = &dr
	}
	return entity, nil
}

func (b *BasicExtraction) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/llmclient"
	"github.com/newsgraph/extractor/pkg/promptstore"
)

// TranslationCharCap bounds how long cleaned text can be before the
// pipeline skips translation rather than spend a second LLM round trip
// on it (spec §4.5 step 2: "length < a configured cap").
const TranslationCharCap = 20000

type triageResponse struct {
	IsRelevant    bool     `json:"is_relevant"`
	Justification string   `json:"justification"`
	Category      string   `json:"category"`
	Keywords      []string `json:"keywords"`
	Confidence    float64  `json:"confidence"`
}

// Triage runs Phase 1 (spec §4.5).
type Triage struct {
	Prompts         *promptstore.Store
	LLM             *llmclient.Client
	WorkingLanguage string
	ModelID         string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	Logger          *slog.Logger
}

// Run executes Phase 1 for a single item. itemID is recorded as the
// result's ItemID and used for logging correlation.
func (t *Triage) Run(ctx context.Context, itemID string, meta extraction.SourceMetadata, rawText string) *extraction.Phase1Result {
	logger := t.logger()

	cleaned := NormalizeText(rawText)

	result := &extraction.Phase1Result{
		ItemID:      itemID,
		CleanedText: cleaned,
	}

	detected := DetectLanguage(cleaned)
	result.DetectedLanguage = detected

	if detected != "und" && detected != t.WorkingLanguage && len(cleaned) < TranslationCharCap {
		translated, err := t.translate(ctx, cleaned, detected, t.WorkingLanguage)
		if err != nil {
			logger.Warn("translation failed, proceeding with original text", "item_id", itemID, "error", err)
			result.Warnings = append(result.Warnings, extraction.Warning{
				Phase:   "triage",
				Code:    extraction.WarnPhaseFallback,
				Message: fmt.Sprintf("translation failed: %v", err),
			})
		} else {
			result.TranslatedText = translated
		}
	}

	prompt, err := t.Prompts.Render(promptstore.TriageTemplate, map[string]string{
		"TITLE":          meta.Title,
		"SOURCE_TYPE":    meta.SourceType,
		"ORIGIN_COUNTRY": meta.OriginCountry,
		"SOURCE_DATE":    meta.SourceDate.Format("2006-01-02"),
		"CONTENT":        cleaned,
	})
	if err != nil {
		logger.Warn("triage prompt render failed, applying fallback", "item_id", itemID, "error", err)
		t.applyFallback(result)
		return result
	}

	raw, err := t.LLM.Generate(ctx, llmclient.Request{
		ModelID:     t.ModelID,
		Prompt:      prompt,
		Temperature: t.Temperature,
		MaxTokens:   t.MaxTokens,
		Timeout:     t.Timeout,
	})
	if err != nil {
		logger.Warn("triage LLM call failed, applying fallback", "item_id", itemID, "error", err)
		t.applyFallback(result)
		return result
	}

	var parsed triageResponse
	if err := json.Unmarshal(llmclient.RepairAndExtract(raw), &parsed); err != nil {
		logger.Warn("triage response unparseable, applying fallback", "item_id", itemID, "error", err)
		t.applyFallback(result)
		return result
	}

	result.IsRelevant = parsed.IsRelevant
	result.Justification = parsed.Justification
	result.Category = parsed.Category
	result.Keywords = parsed.Keywords
	result.Confidence = parsed.Confidence
	return result
}

// applyFallback implements spec §4.5 step 4: accept the item by policy
// rather than silently dropping it for an infrastructure failure.
func (t *Triage) applyFallback(result *extraction.Phase1Result) {
	result.IsRelevant = true
	result.Confidence = 0
	result.Justification = "triage-unavailable, accepted by policy"
	result.Warnings = append(result.Warnings, extraction.Warning{
		Phase:   "triage",
		Code:    extraction.WarnTriageUnavailable,
		Message: "triage LLM call unavailable; item accepted by fallback policy",
	})
}

func (t *Triage) translate(ctx context.Context, text, from, to string) (string, error) {
	prompt := fmt.Sprintf("Translate the following text from %s to %s. Respond with only the translated text, no commentary:\n\n%s", from, to, text)
	return t.LLM.Generate(ctx, llmclient.Request{
		ModelID:     t.ModelID,
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   t.MaxTokens,
		Timeout:     t.Timeout,
	})
}

func (t *Triage) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/newsgraph/extractor/pkg/directory"
	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/fragment"
	"github.com/newsgraph/extractor/pkg/llmclient"
	"github.com/newsgraph/extractor/pkg/promptstore"
)

type rawFactEntityRelation struct {
	FactID    int    `json:"fact_id"`
	EntityID  int    `json:"entity_id"`
	Role      string `json:"role"`
	Relevance int    `json:"relevance"`
}

type rawFactFactRelation struct {
	SourceFactID int    `json:"source_fact_id"`
	TargetFactID int    `json:"target_fact_id"`
	Kind         string `json:"kind"`
	Strength     int    `json:"strength"`
	Description  string `json:"description"`
}

type rawEntityEntityRelation struct {
	SourceEntityID int           `json:"source_entity_id"`
	TargetEntityID int           `json:"target_entity_id"`
	Kind           string        `json:"kind"`
	DateRange      *rawDateRange `json:"date_range"`
	Strength       int           `json:"strength"`
}

type rawContradiction struct {
	PrincipalFactID     int    `json:"principal_fact_id"`
	ContradictoryFactID int    `json:"contradictory_fact_id"`
	Kind                string `json:"kind"`
	Degree              int    `json:"degree"`
	Description         string `json:"description"`
}

type relationsResponse struct {
	FactEntity     []rawFactEntityRelation    `json:"fact_entity"`
	FactFact       []rawFactFactRelation      `json:"fact_fact"`
	EntityEntity   []rawEntityEntityRelation  `json:"entity_entity"`
	Contradictions []rawContradiction         `json:"contradictions"`
}

// NormalizationAndRelations runs Phase 4 (spec §4.8).
type NormalizationAndRelations struct {
	Prompts     *promptstore.Store
	LLM         *llmclient.Client
	Directory   *directory.Client
	ModelID     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Run executes Phase 4. It mutates phase2.Entities in place (never
// replacing or re-identifying records) and returns the enriched slice
// alongside the four relation arrays.
func (n *NormalizationAndRelations) Run(ctx context.Context, meta extraction.SourceMetadata, phase2 *extraction.Phase2Result, phase3 *extraction.Phase3Result, proc *fragment.Processor) *extraction.Phase4Result {
	logger := n.logger()

	entities := phase2.Entities
	n.normalizeEntities(ctx, entities)

	result := &extraction.Phase4Result{Entities: entities}

	basicJSON, err := json.Marshal(map[string]any{
		"facts":    phase2.Facts,
		"entities": entities,
	})
	if err != nil {
		return n.fallback(result, err)
	}
	complementaryJSON, err := json.Marshal(map[string]any{
		"quotes":             phase3.Quotes,
		"quantitative_data":  phase3.Data,
	})
	if err != nil {
		return n.fallback(result, err)
	}

	prompt, err := n.Prompts.Render(promptstore.RelationsTemplate, map[string]string{
		"TITLE":                     meta.Title,
		"SOURCE_TYPE":               meta.SourceType,
		"ORIGIN_COUNTRY":            meta.OriginCountry,
		"SOURCE_DATE":               meta.SourceDate.Format("2006-01-02"),
		"BASIC_ELEMENTS_NORMALIZED": string(basicJSON),
		"COMPLEMENTARY_ELEMENTS":    string(complementaryJSON),
	})
	if err != nil {
		logger.Warn("relations prompt render failed, applying fallback", "error", err)
		return n.fallback(result, err)
	}

	raw, err := n.LLM.Generate(ctx, llmclient.Request{
		ModelID:     n.ModelID,
		Prompt:      prompt,
		Temperature: n.Temperature,
		MaxTokens:   n.MaxTokens,
		Timeout:     n.Timeout,
	})
	if err != nil {
		logger.Warn("relations LLM call failed, applying fallback", "error", err)
		return n.fallback(result, err)
	}

	var parsed relationsResponse
	if err := json.Unmarshal(llmclient.RepairAndExtract(raw), &parsed); err != nil {
		logger.Warn("relations response unparseable, applying fallback", "error", err)
		return n.fallback(result, err)
	}

	factIDs := fragment.NewIDSet(factIDsOf(phase2.Facts))
	entityIDs := fragment.NewIDSet(entityIDsOf(entities))

	for _, r := range parsed.FactEntity {
		rel, warn := validateFactEntity(r, factIDs, entityIDs)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		result.Relations.FactEntity = append(result.Relations.FactEntity, *rel)
	}
	for _, r := range parsed.FactFact {
		rel, warn := validateFactFact(r, factIDs)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		result.Relations.FactFact = append(result.Relations.FactFact, *rel)
	}
	for _, r := range parsed.EntityEntity {
		rel, warn := validateEntityEntity(r, entityIDs)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		result.Relations.EntityEntity = append(result.Relations.EntityEntity, *rel)
	}
	for _, r := range parsed.Contradictions {
		c, warn := validateContradiction(r, factIDs)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		result.Relations.Contradictions = append(result.Relations.Contradictions, *c)
	}

	return result
}

// normalizeEntities implements spec §4.8 step 1: look up each entity in
// the directory and, on a qualifying match, enrich the existing record
// in place. It runs independently of the relations LLM call so it still
// applies even when that call later fails.
func (n *NormalizationAndRelations) normalizeEntities(ctx context.Context, entities []extraction.Entity) {
	logger := n.logger()
	for i := range entities {
		e := &entities[i]
		candidates, err := n.Directory.FindSimilarEntity(ctx, e.Name, string(e.Type), directory.SimilarityThreshold)
		if err != nil {
			logger.Warn("directory lookup failed, leaving entity unmatched", "entity", e.Name, "error", err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}
		best := candidates[0]
		if best.Score < directory.SimilarityThreshold {
			continue
		}
		e.DirectoryUUID = best.ID
		e.CanonicalName = best.CanonicalName
		e.SimilarityScore = best.Score
		e.KnowledgeBaseURI = best.URI
	}
}

// fallback implements spec §4.8 step 6: zero relations, zero
// contradictions; entities remain normalized since normalization already
// ran before this point.
func (n *NormalizationAndRelations) fallback(result *extraction.Phase4Result, cause error) *extraction.Phase4Result {
	result.Warnings = append(result.Warnings, extraction.Warning{
		Phase:   "relations",
		Code:    extraction.WarnPhaseFallback,
		Message: fmt.Sprintf("relation extraction unavailable: %v", cause),
	})
	return result
}

func inRange(v, min, max int) bool { return v >= min && v <= max }

func validateFactEntity(r rawFactEntityRelation, factIDs, entityIDs fragment.IDSet) (*extraction.FactEntityRelation, *extraction.Warning) {
	role := extraction.FactEntityRole(r.Role)
	if !extraction.ValidFactEntityRole(role) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: fmt.Sprintf("fact_entity has invalid role %q", r.Role)}
	}
	if !factIDs.Has(r.FactID) || !entityIDs.Has(r.EntityID) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("fact_entity references unknown fact_id=%d/entity_id=%d", r.FactID, r.EntityID)}
	}
	if !inRange(r.Relevance, 1, 10) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "fact_entity relevance out of range"}
	}
	return &extraction.FactEntityRelation{FactID: r.FactID, EntityID: r.EntityID, Role: role, Relevance: r.Relevance}, nil
}

func validateFactFact(r rawFactFactRelation, factIDs fragment.IDSet) (*extraction.FactFactRelation, *extraction.Warning) {
	kind := extraction.FactFactKind(r.Kind)
	if !extraction.ValidFactFactKind(kind) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: fmt.Sprintf("fact_fact has invalid kind %q", r.Kind)}
	}
	if !factIDs.Has(r.SourceFactID) || !factIDs.Has(r.TargetFactID) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("fact_fact references unknown fact ids %d/%d", r.SourceFactID, r.TargetFactID)}
	}
	if r.SourceFactID == r.TargetFactID {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "fact_fact self-loop"}
	}
	if !inRange(r.Strength, 1, 10) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "fact_fact strength out of range"}
	}
	return &extraction.FactFactRelation{SourceFactID: r.SourceFactID, TargetFactID: r.TargetFactID, Kind: kind, Strength: r.Strength, Description: r.Description}, nil
}

func validateEntityEntity(r rawEntityEntityRelation, entityIDs fragment.IDSet) (*extraction.EntityEntityRelation, *extraction.Warning) {
	kind := extraction.EntityEntityKind(r.Kind)
	if !extraction.ValidEntityEntityKind(kind) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: fmt.Sprintf("entity_entity has invalid kind %q", r.Kind)}
	}
	if !entityIDs.Has(r.SourceEntityID) || !entityIDs.Has(r.TargetEntityID) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("entity_entity references unknown entity ids %d/%d", r.SourceEntityID, r.TargetEntityID)}
	}
	if r.SourceEntityID == r.TargetEntityID {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "entity_entity self-loop"}
	}
	var dateRange *extraction.DateRange
	if r.DateRange != nil {
		dr := r.DateRange.toDateRange()
		dateRange = &dr
	}
	if !inRange(r.Strength, 1, 10) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "entity_entity strength out of range"}
	}
	return &extraction.EntityEntityRelation{SourceEntityID: r.SourceEntityID, TargetEntityID: r.TargetEntityID, Kind: kind, DateRange: dateRange, Strength: r.Strength}, nil
}

func validateContradiction(r rawContradiction, factIDs fragment.IDSet) (*extraction.Contradiction, *extraction.Warning) {
	kind := extraction.ContradictionKind(r.Kind)
	if !extraction.ValidContradictionKind(kind) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: fmt.Sprintf("contradiction has invalid kind %q", r.Kind)}
	}
	if !factIDs.Has(r.PrincipalFactID) || !factIDs.Has(r.ContradictoryFactID) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnDanglingReference, Message: fmt.Sprintf("contradiction references unknown fact ids %d/%d", r.PrincipalFactID, r.ContradictoryFactID)}
	}
	if r.PrincipalFactID == r.ContradictoryFactID {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "contradiction self-loop"}
	}
	if !inRange(r.Degree, 1, 5) {
		return nil, &extraction.Warning{Phase: "relations", Code: extraction.WarnInvalidRelation, Message: "contradiction degree out of range"}
	}
	return &extraction.Contradiction{PrincipalFactID: r.PrincipalFactID, ContradictoryFactID: r.ContradictoryFactID, Kind: kind, Degree: r.Degree, Description: r.Description}, nil
}

func (n *NormalizationAndRelations) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

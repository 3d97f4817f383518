package payload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/newsgraph/extractor/pkg/apperrors"
	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/fragment"
)

// Builder assembles atomic-insert payloads from pipeline outputs. It
// carries no state of its own; the same inputs always produce the same
// payload modulo the Envelope.RequestID the controller supplies (spec
// §8, "pure function of pipeline outputs").
type Builder struct{}

// New returns a Builder.
func New() *Builder {
	return &Builder{}
}

// Input bundles everything the Builder needs beyond the raw input item:
// the typed outputs of Phases 2-4 (Phase 1's only contribution, the
// cleaned/translated text, has already been consumed upstream) plus the
// accumulated warnings and partial-outcome flag the controller tracked
// across all four phases.
type Input struct {
	RequestID string
	Phase2    *extraction.Phase2Result
	Phase3    *extraction.Phase3Result
	Phase4    *extraction.Phase4Result
	Partial   bool
	Warnings  []extraction.Warning
}

// BuildArticle assembles the atomic_insert_article payload for a. It
// returns a *apperrors.Error of KindPayloadAssembly on a storage-path or
// referential-closure violation; per spec §7 that kind never retries.
func (b *Builder) BuildArticle(a *extraction.Article, in Input) (*ArticlePayload, error) {
	if err := ValidateStoragePath(a.StoragePath); err != nil {
		return nil, apperrors.PayloadAssembly(fmt.Sprintf("article storage_path %q is invalid: %v", a.StoragePath, err), err)
	}

	env, err := b.buildEnvelope(extraction.ItemKindArticle, in)
	if err != nil {
		return nil, err
	}

	return &ArticlePayload{
		Envelope:    *env,
		URL:         a.URL,
		StoragePath: a.StoragePath,
		Outlet:      a.Outlet,
		Country:     a.Country,
		OutletType:  a.OutletType,
		Headline:    a.Headline,
		PublishedAt: a.PublishedAt,
	}, nil
}

// BuildFragment assembles the atomic_insert_fragment payload for f.
func (b *Builder) BuildFragment(f *extraction.Fragment, in Input) (*FragmentPayload, error) {
	env, err := b.buildEnvelope(extraction.ItemKindFragment, in)
	if err != nil {
		return nil, err
	}

	return &FragmentPayload{
		Envelope:     *env,
		FragmentID:   f.ID,
		SourceDocID:  f.SourceDocID,
		Position:     f.Position,
		SectionTitle: f.SectionTitle,
	}, nil
}

func (b *Builder) buildEnvelope(kind extraction.ItemKind, in Input) (*Envelope, error) {
	entities := entityPayloads(in.Phase4.Entities)
	facts := factPayloads(in.Phase2.Facts)
	quotes := quotePayloads(in.Phase3.Quotes)
	data := datumPayloads(in.Phase3.Data)

	if err := validateReferentialClosure(in.Phase2.Facts, in.Phase4.Entities, in.Phase3.Quotes, in.Phase3.Data, in.Phase4.Relations); err != nil {
		return nil, apperrors.PayloadAssembly(err.Error(), err)
	}

	return &Envelope{
		RequestID:          in.RequestID,
		ItemKind:           string(kind),
		Entities:           entities,
		Facts:              facts,
		Quotes:             quotes,
		QuantitativeData:   data,
		Relations:          in.Phase4.Relations,
		PossibleDuplicates: detectPossibleDuplicates(in.Phase4.Entities),
		Partial:            in.Partial,
		Warnings:           in.Warnings,
	}, nil
}

func entityPayloads(entities []extraction.Entity) []EntityPayload {
	out := make([]EntityPayload, 0, len(entities))
	for _, e := range entities {
		out = append(out, EntityPayload{
			SequentialID:     e.SequentialID,
			DBID:             e.DirectoryUUID,
			Name:             e.Name,
			Type:             string(e.Type),
			Description:      e.Description,
			Aliases:          e.Aliases,
			CanonicalName:    e.CanonicalName,
			KnowledgeBaseURI: e.KnowledgeBaseURI,
			Relevance:        e.Relevance,
		})
	}
	return out
}

func factPayloads(facts []extraction.Fact) []FactPayload {
	out := make([]FactPayload, 0, len(facts))
	for _, f := range facts {
		out = append(out, FactPayload{
			SequentialID:      f.SequentialID,
			Content:           f.Content,
			OccurrenceRange:   f.OccurrenceRange,
			TemporalPrecision: string(f.TemporalPrecision),
			Type:              string(f.Type),
			Countries:         f.Countries,
			Regions:           f.Regions,
			Cities:            f.Cities,
			Tags:              f.Tags,
			IsFutureEvent:     f.IsFutureEvent,
			Importance:        f.Importance,
		})
	}
	return out
}

func quotePayloads(quotes []extraction.Quote) []QuotePayload {
	out := make([]QuotePayload, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, QuotePayload{
			SequentialID:    q.SequentialID,
			Text:            q.Text,
			EmitterEntityID: q.EmitterEntityID,
			ContextFactID:   q.ContextFactID,
			Date:            q.Date,
			Relevance:       q.Relevance,
		})
	}
	return out
}

func datumPayloads(data []extraction.QuantitativeDatum) []DatumPayload {
	out := make([]DatumPayload, 0, len(data))
	for _, d := range data {
		out = append(out, DatumPayload{
			SequentialID: d.SequentialID,
			FactID:       d.FactID,
			Indicator:    d.Indicator,
			Value:        d.Value,
			Unit:         d.Unit,
			Metadata:     d.Metadata,
		})
	}
	return out
}

// detectPossibleDuplicates flags entities within the same item whose
// names collapse to the same normalized form — the closest the pipeline
// comes to intra-item near-duplicate detection (spec §4.9); resolving
// them is left to the store.
func detectPossibleDuplicates(entities []extraction.Entity) []PossibleDuplicate {
	byName := make(map[string][]int)
	for _, e := range entities {
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if key == "" {
			continue
		}
		byName[key] = append(byName[key], e.SequentialID)
	}

	var dupes []PossibleDuplicate
	for _, ids := range byName {
		if len(ids) < 2 {
			continue
		}
		dupes = append(dupes, PossibleDuplicate{KeptID: ids[0], DuplicateIDs: ids[1:]})
	}
	sort.Slice(dupes, func(i, j int) bool { return dupes[i].KeptID < dupes[j].KeptID })
	return dupes
}

// validateReferentialClosure is the Payload Builder's own defense, run
// immediately before serialization, even though each phase already
// drops dangling cross-references as it runs (spec §4.9: "every id
// referenced must be emitted in the same payload").
func validateReferentialClosure(facts []extraction.Fact, entities []extraction.Entity, quotes []extraction.Quote, data []extraction.QuantitativeDatum, relations extraction.Relations) error {
	factIDs := fragment.NewIDSet(idsOfFacts(facts))
	entityIDs := fragment.NewIDSet(idsOfEntities(entities))

	for _, q := range quotes {
		if !entityIDs.HasPtr(q.EmitterEntityID) {
			return fmt.Errorf("quote %d references entity_id=%v not present in payload", q.SequentialID, q.EmitterEntityID)
		}
		if !factIDs.HasPtr(q.ContextFactID) {
			return fmt.Errorf("quote %d references fact_id=%v not present in payload", q.SequentialID, q.ContextFactID)
		}
	}
	for _, d := range data {
		if !factIDs.HasPtr(d.FactID) {
			return fmt.Errorf("quantitative datum %d references fact_id=%v not present in payload", d.SequentialID, d.FactID)
		}
	}
	for _, r := range relations.FactEntity {
		if !factIDs.Has(r.FactID) || !entityIDs.Has(r.EntityID) {
			return fmt.Errorf("fact_entity relation references fact_id=%d/entity_id=%d not present in payload", r.FactID, r.EntityID)
		}
	}
	for _, r := range relations.FactFact {
		if !factIDs.Has(r.SourceFactID) || !factIDs.Has(r.TargetFactID) {
			return fmt.Errorf("fact_fact relation references fact ids %d/%d not present in payload", r.SourceFactID, r.TargetFactID)
		}
	}
	for _, r := range relations.EntityEntity {
		if !entityIDs.Has(r.SourceEntityID) || !entityIDs.Has(r.TargetEntityID) {
			return fmt.Errorf("entity_entity relation references entity ids %d/%d not present in payload", r.SourceEntityID, r.TargetEntityID)
		}
	}
	for _, c := range relations.Contradictions {
		if !factIDs.Has(c.PrincipalFactID) || !factIDs.Has(c.ContradictoryFactID) {
			return fmt.Errorf("contradiction references fact ids %d/%d not present in payload", c.PrincipalFactID, c.ContradictoryFactID)
		}
	}
	return nil
}

func idsOfFacts(facts []extraction.Fact) []int {
	ids := make([]int, len(facts))
	for i, f := range facts {
		ids[i] = f.SequentialID
	}
	return ids
}

func idsOfEntities(entities []extraction.Entity) []int {
	ids := make([]int, len(entities))
	for i, e := range entities {
		ids[i] = e.SequentialID
	}
	return ids
}

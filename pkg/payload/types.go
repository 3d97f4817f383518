// Package payload implements the Payload Builder (spec §4.9): it
// transforms the in-memory phase graph into the exact nested JSON
// expected by the store's atomic-insert endpoints, and performs the two
// checks that must happen locally before any network call is made —
// referential closure and storage-contract validation.
package payload

import (
	"time"

	"github.com/newsgraph/extractor/pkg/extraction"
)

// EntityPayload is an entity as emitted to the store. DBID is populated
// only when Phase 4 normalization matched it against an existing
// directory record; the store reuses that id instead of minting a new
// one.
type EntityPayload struct {
	SequentialID     int      `json:"sequential_id"`
	DBID             string   `json:"db_id,omitempty"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Description      string   `json:"description,omitempty"`
	Aliases          []string `json:"aliases,omitempty"`
	CanonicalName    string   `json:"canonical_name,omitempty"`
	KnowledgeBaseURI string   `json:"kb_uri,omitempty"`
	Relevance        int      `json:"default_relevance"`
}

// FactPayload is a fact as emitted to the store.
type FactPayload struct {
	SequentialID      int                  `json:"sequential_id"`
	Content           string               `json:"content"`
	OccurrenceRange   extraction.DateRange `json:"occurrence_range"`
	TemporalPrecision string               `json:"temporal_precision"`
	Type              string               `json:"type"`
	Countries         []string             `json:"countries,omitempty"`
	Regions           []string             `json:"regions,omitempty"`
	Cities            []string             `json:"cities,omitempty"`
	Tags              []string             `json:"tags,omitempty"`
	IsFutureEvent     bool                 `json:"is_future_event"`
	Importance        int                  `json:"default_importance"`
}

// QuotePayload is a quote as emitted to the store, keyed to the fact and
// entity sequential ids it references.
type QuotePayload struct {
	SequentialID    int     `json:"sequential_id"`
	Text            string  `json:"text"`
	EmitterEntityID *int    `json:"emitter_entity_id,omitempty"`
	ContextFactID   *int    `json:"context_fact_id,omitempty"`
	Date            *string `json:"date,omitempty"`
	Relevance       int     `json:"relevance"`
}

// DatumPayload is a quantitative datum as emitted to the store.
type DatumPayload struct {
	SequentialID int                    `json:"sequential_id"`
	FactID       *int                   `json:"fact_id,omitempty"`
	Indicator    string                 `json:"indicator"`
	Value        float64                `json:"value"`
	Unit         string                 `json:"unit"`
	Metadata     extraction.DatumMetadata `json:"metadata"`
}

// PossibleDuplicate flags that KeptID's payload record and DuplicateIDs
// refer to what the pipeline believes is the same entity within this
// item. The store is expected to resolve them on insert; the pipeline
// only surfaces the mapping.
type PossibleDuplicate struct {
	KeptID       int   `json:"kept_sequential_id"`
	DuplicateIDs []int `json:"duplicate_sequential_ids"`
}

// Envelope is the common body shared by article and fragment payloads.
type Envelope struct {
	RequestID          string                  `json:"request_id"`
	ItemKind           string                  `json:"item_kind"`
	Entities           []EntityPayload         `json:"entities"`
	Facts              []FactPayload           `json:"facts"`
	Quotes             []QuotePayload          `json:"quotes"`
	QuantitativeData   []DatumPayload          `json:"quantitative_data"`
	Relations          extraction.Relations    `json:"relations"`
	PossibleDuplicates []PossibleDuplicate     `json:"possible_duplicates,omitempty"`
	Partial            bool                    `json:"partial"`
	Warnings           []extraction.Warning    `json:"warnings,omitempty"`
}

// ArticlePayload is the payload submitted to atomic_insert_article.
type ArticlePayload struct {
	Envelope
	URL         string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	Outlet      string    `json:"outlet"`
	Country     string    `json:"country"`
	OutletType  string    `json:"outlet_type"`
	Headline    string    `json:"headline"`
	PublishedAt time.Time `json:"published_at"`
}

// FragmentPayload is the payload submitted to atomic_insert_fragment.
type FragmentPayload struct {
	Envelope
	FragmentID     string `json:"fragment_id"`
	SourceDocID    string `json:"source_document_id"`
	Position       int    `json:"sequential_position"`
	SectionTitle   string `json:"section_title,omitempty"`
}

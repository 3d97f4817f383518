package extraction

// MinQuoteLength is the minimum accepted length of quote text (spec §3).
const MinQuoteLength = 5

// DefaultQuoteRelevance is used when a quote record does not specify one.
const DefaultQuoteRelevance = 3

// Quote is a direct quotation attributed, optionally, to an entity and
// grounded, optionally, in a fact.
type Quote struct {
	SequentialID   int     `json:"sequential_id"`
	Text           string  `json:"text"`
	EmitterEntityID *int   `json:"emitter_entity_id,omitempty"`
	ContextFactID  *int    `json:"context_fact_id,omitempty"`
	Date           *string `json:"date,omitempty"`
	ContextSnippet string  `json:"context_snippet,omitempty"`
	Relevance      int     `json:"relevance"`
}

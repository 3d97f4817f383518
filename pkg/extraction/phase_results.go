package extraction

// Phase1Result is the output of Triage (spec §4.5). TextForNextPhase is
// the translated text when translation happened, else CleanedText — the
// single field Phase 2 reads, so Phase 2 never has to know whether
// translation occurred.
type Phase1Result struct {
	ItemID           string
	IsRelevant       bool
	Justification    string
	Category         string
	Keywords         []string
	Confidence       float64
	CleanedText      string
	DetectedLanguage string
	TranslatedText   string // empty when no translation was needed
	Warnings         []Warning
}

// TextForNextPhase returns the text Phase 2 should consume: the
// translation when present, otherwise the cleaned text.
func (r *Phase1Result) TextForNextPhase() string {
	if r.TranslatedText != "" {
		return r.TranslatedText
	}
	return r.CleanedText
}

// Rejected reports whether the controller should stop after Phase 1
// (spec §4.5 rejection policy: not relevant and confidence >= 0.5).
func (r *Phase1Result) Rejected() bool {
	return !r.IsRelevant && r.Confidence >= 0.5
}

// Phase2Result is the output of Basic Extraction (spec §4.6).
type Phase2Result struct {
	Facts    []Fact
	Entities []Entity
	Warnings []Warning
}

// FactByID looks up a Phase 2 fact by its sequential id.
func (r *Phase2Result) FactByID(id int) (*Fact, bool) {
	for i := range r.Facts {
		if r.Facts[i].SequentialID == id {
			return &r.Facts[i], true
		}
	}
	return nil, false
}

// EntityByID looks up a Phase 2 entity by its sequential id.
func (r *Phase2Result) EntityByID(id int) (*Entity, bool) {
	for i := range r.Entities {
		if r.Entities[i].SequentialID == id {
			return &r.Entities[i], true
		}
	}
	return nil, false
}

// Phase3Result is the output of Quotes & Quantitative Data (spec §4.7).
type Phase3Result struct {
	Quotes   []Quote
	Data     []QuantitativeDatum
	Warnings []Warning
}

// Phase4Result is the output of Normalization & Relations (spec §4.8).
// Entities is the Phase 2 entity list, mutated in place with directory
// linkage — never a replacement list with different identities.
type Phase4Result struct {
	Entities  []Entity
	Relations Relations
	Warnings  []Warning
}

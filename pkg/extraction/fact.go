package extraction

// TemporalPrecision describes how precisely a fact's occurrence date is
// known.
type TemporalPrecision string

const (
	PrecisionExact   TemporalPrecision = "exact"
	PrecisionDay     TemporalPrecision = "day"
	PrecisionWeek    TemporalPrecision = "week"
	PrecisionMonth   TemporalPrecision = "month"
	PrecisionQuarter TemporalPrecision = "quarter"
	PrecisionYear    TemporalPrecision = "year"
	PrecisionDecade  TemporalPrecision = "decade"
	PrecisionPeriod  TemporalPrecision = "period"
)

func ValidTemporalPrecision(p TemporalPrecision) bool {
	switch p {
	case PrecisionExact, PrecisionDay, PrecisionWeek, PrecisionMonth, PrecisionQuarter, PrecisionYear, PrecisionDecade, PrecisionPeriod:
		return true
	}
	return false
}

// FactType is the closed set of fact kinds recognized by the pipeline.
type FactType string

const (
	FactEvent          FactType = "EVENT"
	FactAnnouncement   FactType = "ANNOUNCEMENT"
	FactStatement      FactType = "STATEMENT"
	FactBiography      FactType = "BIOGRAPHY"
	FactConcept        FactType = "CONCEPT"
	FactNormative      FactType = "NORMATIVE"
	FactScheduledEvent FactType = "SCHEDULED_EVENT"
)

func ValidFactType(t FactType) bool {
	switch t {
	case FactEvent, FactAnnouncement, FactStatement, FactBiography, FactConcept, FactNormative, FactScheduledEvent:
		return true
	}
	return false
}

// DefaultImportance is the default importance score assigned to a fact
// when the extraction does not supply one. Downstream editorial/ML
// importance scoring is out of scope for the pipeline (spec §9, open
// question on importance arbitration).
const DefaultImportance = 5

// Fact is a discrete claim, event, announcement, or statement extracted
// from an item.
type Fact struct {
	SequentialID      int               `json:"sequential_id"`
	Content           string            `json:"content"`
	OccurrenceRange   DateRange         `json:"occurrence_range"`
	TemporalPrecision TemporalPrecision `json:"temporal_precision"`
	Type              FactType          `json:"type"`
	Countries         []string          `json:"countries,omitempty"`
	Regions           []string          `json:"regions,omitempty"`
	Cities            []string          `json:"cities,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	IsFutureEvent     bool              `json:"is_future_event"`
	SchedulingState   string            `json:"scheduling_state,omitempty"`
	Importance        int               `json:"default_importance"`
}

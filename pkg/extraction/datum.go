package extraction

// DatumCategory is the closed set of quantitative-datum categories.
type DatumCategory string

const (
	DatumEconomic      DatumCategory = "economic"
	DatumDemographic   DatumCategory = "demographic"
	DatumElectoral     DatumCategory = "electoral"
	DatumSocial        DatumCategory = "social"
	DatumBudgetary     DatumCategory = "budgetary"
	DatumSanitary      DatumCategory = "sanitary"
	DatumEnvironmental DatumCategory = "environmental"
	DatumConflict      DatumCategory = "conflict"
	DatumOther         DatumCategory = "other"
)

func ValidDatumCategory(c DatumCategory) bool {
	switch c {
	case DatumEconomic, DatumDemographic, DatumElectoral, DatumSocial, DatumBudgetary, DatumSanitary, DatumEnvironmental, DatumConflict, DatumOther:
		return true
	}
	return false
}

// Trend is the closed set of trend directions for a quantitative datum.
type Trend string

const (
	TrendIncrease Trend = "increase"
	TrendDecrease Trend = "decrease"
	TrendStable   Trend = "stable"
)

func ValidTrend(t Trend) bool {
	switch t {
	case TrendIncrease, TrendDecrease, TrendStable, "":
		return true
	}
	return false
}

// DatumMetadata groups the secondary, mostly-optional fields of a
// quantitative datum so the core (fact link, indicator, value, unit)
// stays uncluttered — mirrors how the storage contract nests them.
type DatumMetadata struct {
	Category          DatumCategory `json:"category"`
	GeographicScope   []string      `json:"geographic_scope,omitempty"`
	PeriodStart       *string       `json:"reference_period_start,omitempty"`
	PeriodEnd         *string       `json:"reference_period_end,omitempty"`
	PeriodType        string        `json:"period_type,omitempty"`
	PreviousValue     *float64      `json:"previous_value,omitempty"`
	AbsoluteVariation *float64      `json:"absolute_variation,omitempty"`
	PercentVariation  *float64      `json:"percent_variation,omitempty"`
	Trend             Trend         `json:"trend,omitempty"`
}

// QuantitativeDatum is a numeric indicator extracted from an item,
// optionally linked to the fact it supports.
type QuantitativeDatum struct {
	SequentialID int           `json:"sequential_id"`
	FactID       *int          `json:"fact_id,omitempty"`
	Indicator    string        `json:"indicator"`
	Value        float64       `json:"value"`
	Unit         string        `json:"unit"`
	Metadata     DatumMetadata `json:"metadata"`
}

// MinIndicatorLength is the minimum accepted length of an indicator name.
const MinIndicatorLength = 3

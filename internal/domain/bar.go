package domain

import "math"

// Field names of the bar record schema.
const (
	FieldDate           = "date"
	FieldOpen           = "open"
	FieldHigh           = "high"
	FieldLow            = "low"
	FieldClose          = "close"
	FieldPrevClose      = "prev_close"
	FieldVolume         = "volume"
	FieldTotalTurnover  = "total_turnover"
	FieldSettlement     = "settlement"
	FieldPrevSettlement = "prev_settlement"
	FieldOpenInterest   = "open_interest"
)

var (
	// SpotFields is the ordered schema of a spot bar record.
	SpotFields = []string{
		FieldDate, FieldOpen, FieldHigh, FieldLow, FieldClose,
		FieldPrevClose, FieldVolume, FieldTotalTurnover,
	}
	// FutureFields appends the derivative columns to SpotFields.
	FutureFields = append(append([]string(nil), SpotFields...),
		FieldSettlement, FieldPrevSettlement, FieldOpenInterest)
)

// FieldsFor returns the bar schema of an asset class.
func FieldsFor(class AssetClass) []string {
	if class == CryptoFuture {
		return FutureFields
	}
	return SpotFields
}

// Bar is one daily price record. Derivative fields are NaN for spot bars.
type Bar struct {
	Date           Date
	Open           float64
	High           float64
	Low            float64
	Close          float64
	PrevClose      float64
	Volume         float64
	TotalTurnover  float64
	Settlement     float64
	PrevSettlement float64
	OpenInterest   float64
}

// NewSpotBar builds a bar with the derivative fields unset.
func NewSpotBar(date Date, open, high, low, close, prevClose, volume, turnover float64) Bar {
	return Bar{
		Date:           date,
		Open:           open,
		High:           high,
		Low:            low,
		Close:          close,
		PrevClose:      prevClose,
		Volume:         volume,
		TotalTurnover:  turnover,
		Settlement:     math.NaN(),
		PrevSettlement: math.NaN(),
		OpenInterest:   math.NaN(),
	}
}

// Field returns the named column of the bar. The date is returned as a float.
func (b Bar) Field(name string) (float64, bool) {
	switch name {
	case FieldDate:
		return float64(b.Date), true
	case FieldOpen:
		return b.Open, true
	case FieldHigh:
		return b.High, true
	case FieldLow:
		return b.Low, true
	case FieldClose:
		return b.Close, true
	case FieldPrevClose:
		return b.PrevClose, true
	case FieldVolume:
		return b.Volume, true
	case FieldTotalTurnover:
		return b.TotalTurnover, true
	case FieldSettlement:
		return b.Settlement, true
	case FieldPrevSettlement:
		return b.PrevSettlement, true
	case FieldOpenInterest:
		return b.OpenInterest, true
	default:
		return 0, false
	}
}

// Equal compares two bars treating NaN as equal to NaN.
func (b Bar) Equal(o Bar) bool {
	return b.Date == o.Date &&
		floatEq(b.Open, o.Open) &&
		floatEq(b.High, o.High) &&
		floatEq(b.Low, o.Low) &&
		floatEq(b.Close, o.Close) &&
		floatEq(b.PrevClose, o.PrevClose) &&
		floatEq(b.Volume, o.Volume) &&
		floatEq(b.TotalTurnover, o.TotalTurnover) &&
		floatEq(b.Settlement, o.Settlement) &&
		floatEq(b.PrevSettlement, o.PrevSettlement) &&
		floatEq(b.OpenInterest, o.OpenInterest)
}

func floatEq(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// BarSeries is a query result: bars oldest first, plus the requested field subset.
// A nil Fields slice means the full schema of the asset class.
type BarSeries struct {
	Fields []string
	Bars   []Bar
}

// Len returns the number of bars.
func (s *BarSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Dates returns the bar dates in order.
func (s *BarSeries) Dates() []Date {
	if s == nil {
		return nil
	}
	out := make([]Date, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}

// Column extracts one field across all bars. It returns false for a field
// outside the projection.
func (s *BarSeries) Column(field string) ([]float64, bool) {
	if s == nil {
		return nil, false
	}
	if s.Fields != nil && !containsField(s.Fields, field) {
		return nil, false
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		v, ok := b.Field(field)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// SortedByDate reports whether bars are strictly increasing by date.
func SortedByDate(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].Date <= bars[i-1].Date {
			return false
		}
	}
	return true
}

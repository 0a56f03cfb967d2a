package model

// Unspecified is the sentinel for metadata the extraction service did not
// return. Records never carry empty fields; downstream grouping relies on it.
const Unspecified = "Unspecified"

// EffectDirection categorizes the reported relationship between driver and response
type EffectDirection string

const (
	EffectPositive      EffectDirection = "Positive"
	EffectNegative      EffectDirection = "Negative"
	EffectNeutral       EffectDirection = "Neutral"
	EffectComplex       EffectDirection = "Complex"
	EffectMethodological EffectDirection = "Methodological"
	EffectUnclear       EffectDirection = "Unclear"
)

// ValidEffect reports whether s is one of the fixed effect directions
func ValidEffect(s string) bool {
	switch EffectDirection(s) {
	case EffectPositive, EffectNegative, EffectNeutral, EffectComplex, EffectMethodological, EffectUnclear:
		return true
	}
	return false
}

// Record represents one extracted driver-response finding from a source document
type Record struct {
	ID string `json:"id"` // Unique, assigned at merge time, never reused

	Category string `json:"category"` // Top taxonomy level
	Theme    string `json:"theme"`    // Second taxonomy level, scoped to category

	Driver        string `json:"driver"`
	DriverGroup   string `json:"driver_group"`
	Response      string `json:"response"`
	ResponseGroup string `json:"response_group"`

	Effect EffectDirection `json:"effect"`

	Title    string   `json:"title"`
	Authors  string   `json:"authors"`
	Year     string   `json:"year"`
	Journal  string   `json:"journal"`
	Finding  string   `json:"finding"`
	Keywords []string `json:"keywords,omitempty"`
	Location string   `json:"location"`
	Species  string   `json:"species,omitempty"`
	Citation string   `json:"citation"`

	Batch int `json:"batch"` // Origin batch sequence number
}

// FillDefaults replaces empty metadata fields with the Unspecified sentinel
// and clamps the effect direction to the fixed enumeration.
func (r *Record) FillDefaults() {
	for _, f := range []*string{
		&r.Category, &r.Theme,
		&r.Driver, &r.DriverGroup, &r.Response, &r.ResponseGroup,
		&r.Title, &r.Authors, &r.Year, &r.Journal,
		&r.Finding, &r.Location, &r.Citation,
	} {
		if *f == "" {
			*f = Unspecified
		}
	}
	if !ValidEffect(string(r.Effect)) {
		r.Effect = EffectUnclear
	}
}

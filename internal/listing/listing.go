package listing

import "time"

// Attribute is a single key/value pair supplied by a source collector.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RawListing is a marketplace listing as captured by a source collector.
// It is never mutated after capture.
type RawListing struct {
	SourcePlatform string      `json:"source_platform"`
	SourceAdID     string      `json:"source_ad_id"`
	URL            string      `json:"url"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Price          float64     `json:"price"`
	Currency       string      `json:"currency,omitempty"`
	Images         []string    `json:"images,omitempty"`
	PrimaryImage   string      `json:"primary_image,omitempty"`
	Attributes     []Attribute `json:"attributes,omitempty"`
	Components     []Attribute `json:"components,omitempty"`
	Seller         string      `json:"seller,omitempty"`
	Delivery       string      `json:"delivery,omitempty"`
	Location       string      `json:"location,omitempty"`
	Views          int         `json:"views,omitempty"`
	PublishedAt    *time.Time  `json:"published_at,omitempty"`

	// Trusted parse results a collector may already know from structured markup.
	Brand     string `json:"brand,omitempty"`
	Model     string `json:"model,omitempty"`
	Year      int    `json:"year,omitempty"`
	FrameSize string `json:"frame_size,omitempty"`
	WheelSize string `json:"wheel_size,omitempty"`
}

// Key returns the dedup key of the listing.
func (r RawListing) Key() string {
	return r.SourcePlatform + ":" + r.SourceAdID
}

// ExtractedFacts is the specification record mined from listing text.
// Empty strings and zero numbers mean the field could not be determined.
type ExtractedFacts struct {
	Brand         string
	Model         string
	Year          int
	FrameMaterial string
	WheelSize     string
	FrameSize     string
	Drivetrain    string
	Groupset      string
	Brakes        string
	BrakesType    string
	Suspension    string
	FrontTravel   int
	RearTravel    int
	Color         string
	Cassette      string
	Tires         string
	Fork          string
	Shock         string

	// Evidence records which strategy produced each populated field.
	Evidence map[Field]string
}

// Origin names the source that supplied a merged field.
type Origin string

const (
	OriginCollector Origin = "collector"
	OriginRules     Origin = "rules"
	OriginModel     Origin = "model"
)

// NormalizedListing combines the raw listing, the extracted facts and any
// model-derived values into the record that is graded, valued and persisted.
type NormalizedListing struct {
	Raw   RawListing
	Facts ExtractedFacts

	Discipline    string
	SubCategory   string
	ConditionHint string

	Origins   map[Field]Origin
	Conflicts []Conflict

	Confidence    float64
	Completeness  int
	Quality       int
	LowConfidence bool
	NeedsReview   bool
	ReviewReasons []string
}

// AddReview marks the listing for manual review, recording why.
func (n *NormalizedListing) AddReview(reason string) {
	n.NeedsReview = true
	for _, r := range n.ReviewReasons {
		if r == reason {
			return
		}
	}
	n.ReviewReasons = append(n.ReviewReasons, reason)
}

// Conflict severities.
const (
	SeverityLow     = "low"
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

// Conflict is a disagreement between deterministic and model-derived facts.
type Conflict struct {
	Field    Field
	Severity string
	Detail   string
}

// Condition grades.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
)

// ConditionReport is the graded physical condition of a listing.
type ConditionReport struct {
	Score      int
	Grade      string
	Functional int
	Visual     int
	Rationale  string
	Defects    []string
	Flags      []string
	Degraded   bool
}

// Verdict is the outcome of a sniper rule check.
type Verdict struct {
	Hit       bool
	Reason    string
	Threshold float64
}

// PriceRange is the interquartile range of the comparables behind an FMV.
type PriceRange struct {
	Q1 float64
	Q3 float64
}

// ValuationResult is the fair-market-value estimate for a listing. Samples
// counts the comparables left after outlier trimming; Trimmed counts the
// ones dropped.
type ValuationResult struct {
	FMV         *float64
	Samples     int
	Trimmed     int
	Range       *PriceRange
	Confidence  float64
	DiscountPct float64
	AdjustedFMV *float64
	Delivery    DeliveryMode
	Sniper      Verdict
}

// HasFMV reports whether enough comparables existed to estimate a value.
func (v ValuationResult) HasFMV() bool {
	return v.FMV != nil
}

package database

// Outcome is the result of a persistence attempt.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeInserted
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// Listing is a persisted listing row.
type Listing struct {
	ID             int64
	SourcePlatform string
	SourceAdID     string
	URL            string
	Title          string
	Description    string
	Price          float64
	Currency       string
	Brand          string
	Model          string
	Year           int
	FrameMaterial  string
	FrameSize      string
	WheelSize      string
	Groupset       string
	Suspension     string
	BrakesType     string
	Discipline     string
	SubCategory    string
	FactsJSON      string
	Seller         string
	Location       string
	DeliveryMode   string
	Views          int
	PublishedAt    *string

	Confidence    float64
	Completeness  int
	Quality       int
	LowConfidence bool
	NeedsReview   bool
	ReviewReasons []string

	ConditionScore     *int
	ConditionGrade     *string
	FunctionalRating   int
	VisualRating       int
	ConditionRationale string
	Defects            []string
	ConditionDegraded  bool

	FMV           *float64
	FMVSamples    int
	FMVLow        *float64
	FMVHigh       *float64
	FMVConfidence *float64
	AdjustedFMV   *float64
	DiscountPct  *float64
	SniperHit    bool
	SniperReason string
	Hotness      int

	IsActive  bool
	RunID     string
	CreatedAt *string

	Images []Image
}

// Image is a persisted listing image.
type Image struct {
	URL       string
	Position  int
	IsPrimary bool
}

// Failed-queue statuses.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusResolved  = "resolved"
	StatusDiscarded = "discarded"
)

// FailedListing is an entry of the failed-listing retry queue.
type FailedListing struct {
	ID             int64
	SourcePlatform string
	SourceAdID     string
	URL            string
	RawPayload     string
	Status         string
	Attempts       int
	LastError      *string
	LastAttemptAt  *string
	CreatedAt      *string
}

// Event is a pipeline milestone in the append-only event log.
type Event struct {
	ID        int64
	RunID     string
	Type      string
	Source    string
	Details   map[string]any
	CreatedAt string
}

// HistorySample is one observed market price for a brand and model.
type HistorySample struct {
	Brand      string
	Model      string
	Price      float64
	ObservedAt string
	Source     string
}

// ListOptions filters listing queries.
type ListOptions struct {
	MinHotness int
	ActiveOnly bool
	Limit      int
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalListings   int
	ActiveListings  int
	NeedsReview     int
	HotListings     int
	SniperHits      int
	PendingFailed   int
	DiscardedFailed int
	HistorySamples  int
	Events          int
}

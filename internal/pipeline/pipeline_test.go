package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/collect"
	"github.com/TobiSchelling/BikeScout/internal/database"
	"github.com/TobiSchelling/BikeScout/internal/facts"
	"github.com/TobiSchelling/BikeScout/internal/filter"
	"github.com/TobiSchelling/BikeScout/internal/gateway"
	"github.com/TobiSchelling/BikeScout/internal/listing"
	"github.com/TobiSchelling/BikeScout/internal/llm"
	"github.com/TobiSchelling/BikeScout/internal/ranking"
	"github.com/TobiSchelling/BikeScout/internal/valuation"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu       sync.Mutex
	existing map[string]bool
	inserted []database.Listing
	insertOK database.Outcome
	failed   map[string]string
	due      []database.FailedListing
	resolved []int64
	attempts map[int64]int
	events   []string
}

func newMemStore() *memStore {
	return &memStore{
		existing: map[string]bool{},
		insertOK: database.OutcomeInserted,
		failed:   map[string]string{},
		attempts: map[int64]int{},
	}
}

func (m *memStore) ListingExists(platform, adID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[platform+":"+adID], nil
}

func (m *memStore) InsertListing(ctx context.Context, l database.Listing) (database.Outcome, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertOK != database.OutcomeInserted {
		return m.insertOK, 99, nil
	}
	m.inserted = append(m.inserted, l)
	return database.OutcomeInserted, int64(len(m.inserted)), nil
}

func (m *memStore) EnqueueFailed(platform, adID, url, payload, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[platform+":"+adID] = payload
	return nil
}

func (m *memStore) GetDueFailed(limit int) ([]database.FailedListing, error) {
	if len(m.due) > limit {
		return m.due[:limit], nil
	}
	return m.due, nil
}

func (m *memStore) ResolveFailed(id int64) error {
	m.resolved = append(m.resolved, id)
	return nil
}

func (m *memStore) RecordFailedAttempt(id int64, lastErr string) (bool, error) {
	m.attempts[id]++
	for _, f := range m.due {
		if f.ID == id {
			return f.Attempts+m.attempts[id] >= database.MaxFailedAttempts, nil
		}
	}
	return false, nil
}

func (m *memStore) LogEvent(runID, eventType, source string, details map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}

func (m *memStore) hasEvent(t string) bool {
	for _, e := range m.events {
		if e == t {
			return true
		}
	}
	return false
}

type stubNormalizer struct {
	mu     sync.Mutex
	calls  int
	err    error
	review bool
}

func (s *stubNormalizer) Normalize(ctx context.Context, raw listing.RawListing, f listing.ExtractedFacts, images []llm.Image) (listing.NormalizedListing, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	f.Brand, f.Model = "Canyon", "Spectral"
	n := listing.NormalizedListing{Raw: raw, Facts: f, Confidence: 0.9}
	if s.review {
		n.AddReview("missing_model")
	}
	return n, s.err
}

type stubGrader struct {
	calls int
	flags []string
}

func (s *stubGrader) Analyze(ctx context.Context, n listing.NormalizedListing, images []llm.Image) (listing.ConditionReport, error) {
	s.calls++
	return listing.ConditionReport{Score: 85, Grade: "A", Functional: 5, Visual: 4, Rationale: "clean frame, recent service", Flags: s.flags}, nil
}

type stubHistory struct {
	prices []float64
}

func (s stubHistory) RecentPrices(ctx context.Context, brand, model string, limit int) ([]float64, error) {
	return s.prices, nil
}

type fixture struct {
	store  *memStore
	norm   *stubNormalizer
	grader *stubGrader
	sleeps int
	p      *Pipeline
}

func newFixture(t *testing.T, prices []float64, opts Options) *fixture {
	t.Helper()
	fx := &fixture{store: newMemStore(), norm: &stubNormalizer{}, grader: &stubGrader{}}
	fx.p = New(Deps{
		Store:      fx.store,
		Filter:     filter.New(filter.Config{}),
		Engine:     facts.NewWithRules(facts.DefaultRules(2024), 2024),
		Normalizer: fx.norm,
		Grader:     fx.grader,
		Valuer:     valuation.NewService(stubHistory{prices: prices}, valuation.DefaultConfig()),
		Scorer:     ranking.Scorer{Threshold: 1000},
	}, opts)
	fx.p.now = func() time.Time { return testNow }
	fx.p.sleep = func(context.Context, time.Duration) error {
		fx.sleeps++
		return nil
	}
	return fx
}

func rawListing(id string, price float64) listing.RawListing {
	published := testNow.Add(-6 * time.Minute)
	return listing.RawListing{
		SourcePlatform: "kleinanzeigen",
		SourceAdID:     id,
		URL:            "https://example.com/ad/" + id,
		Title:          "Canyon Spectral CF 8 Carbon Enduro",
		Description:    "Fully serviced, Shimano XT, 160mm travel",
		Price:          price,
		Delivery:       "Versand möglich",
		Views:          10,
		PublishedAt:    &published,
	}
}

func TestRejectedListingMakesNoModelCalls(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{})

	o := fx.p.Process(context.Background(), "run", rawListing("1", 50))
	if o.State != StateRejected || o.Reason != filter.ReasonPriceTooLow {
		t.Errorf("expected price rejection, got %s %q", o.State, o.Reason)
	}
	if fx.norm.calls != 0 || fx.grader.calls != 0 {
		t.Errorf("expected no model calls, got %d/%d", fx.norm.calls, fx.grader.calls)
	}
	if !fx.store.hasEvent(database.EventListingRejected) {
		t.Error("expected listing_rejected event")
	}
}

func TestEarlyDuplicateCheck(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	fx.store.existing["kleinanzeigen:1"] = true

	o := fx.p.Process(context.Background(), "run", rawListing("1", 800))
	if o.State != StateDuplicate {
		t.Errorf("expected duplicate, got %s", o.State)
	}
	if fx.norm.calls != 0 {
		t.Error("duplicate should not reach the normalizer")
	}
}

func TestHotSniperListingPersisted(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{})

	o := fx.p.Process(context.Background(), "run-1", rawListing("1", 800))
	if o.State != StatePersisted {
		t.Fatalf("expected persisted, got %s (%v)", o.State, o.Err)
	}
	if o.Hotness != 4000 || !o.Hot || !o.Sniper {
		t.Errorf("expected hot sniper hit with hotness 4000, got %+v", o)
	}
	if fx.grader.calls != 1 {
		t.Errorf("expected condition grading, got %d calls", fx.grader.calls)
	}

	l := fx.store.inserted[0]
	if !l.IsActive || l.RunID != "run-1" {
		t.Errorf("expected active listing of run-1, got active=%v run=%q", l.IsActive, l.RunID)
	}
	if l.AdjustedFMV == nil || *l.AdjustedFMV != 1000 {
		t.Errorf("grade A should keep the full FMV, got %v", l.AdjustedFMV)
	}
	for _, e := range []string{database.EventListingAdded, database.EventHotListing, database.EventSniperHit} {
		if !fx.store.hasEvent(e) {
			t.Errorf("expected %s event, got %v", e, fx.store.events)
		}
	}
}

func TestPreCheckMissSkipsGrading(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{})

	o := fx.p.Process(context.Background(), "run", rawListing("1", 950))
	if o.State != StatePersisted || o.Sniper {
		t.Fatalf("expected persisted non-hit, got %s sniper=%v", o.State, o.Sniper)
	}
	if fx.grader.calls != 0 {
		t.Error("grading should be skipped when the price misses the threshold")
	}
	l := fx.store.inserted[0]
	if !l.ConditionDegraded || l.ConditionGrade == nil || *l.ConditionGrade != "B" {
		t.Errorf("expected default report, got %+v", l)
	}
}

func TestNoComparablesStillGradesAndPersists(t *testing.T) {
	fx := newFixture(t, []float64{1000}, Options{})

	o := fx.p.Process(context.Background(), "run", rawListing("1", 400))
	if o.State != StatePersisted || o.Sniper || o.Hotness != 0 {
		t.Errorf("expected persisted without verdict, got %+v", o)
	}
	if fx.grader.calls != 1 {
		t.Error("expected grading without an FMV")
	}
	if fx.store.inserted[0].FMV != nil {
		t.Error("FMV should be null")
	}
}

func TestNeedsReviewIsInactive(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	fx.norm.review = true

	fx.p.Process(context.Background(), "run", rawListing("1", 800))
	if len(fx.store.inserted) != 1 || fx.store.inserted[0].IsActive {
		t.Error("listing needing review must be stored inactive")
	}
}

func TestConditionFlagsRequireReview(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{})
	fx.grader.flags = []string{"photos_do_not_match_description", "Frame damage suspected"}

	o := fx.p.Process(context.Background(), "run", rawListing("1", 800))
	if o.State != StatePersisted {
		t.Fatalf("expected persisted, got %s (%v)", o.State, o.Err)
	}
	l := fx.store.inserted[0]
	if l.IsActive || !l.NeedsReview {
		t.Errorf("flagged listing must be stored inactive for review, got active=%v review=%v", l.IsActive, l.NeedsReview)
	}
	want := []string{"condition_photos_do_not_match_description", "condition_frame_damage_suspected"}
	if strings.Join(l.ReviewReasons, ",") != strings.Join(want, ",") {
		t.Errorf("review reasons = %v, want %v", l.ReviewReasons, want)
	}
	if !strings.Contains(l.FactsJSON, `"condition_flags":["photos_do_not_match_description","Frame damage suspected"]`) {
		t.Errorf("expected flags in facts document, got %s", l.FactsJSON)
	}
}

func TestInsertRaceReportsDuplicate(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{})
	fx.store.insertOK = database.OutcomeDuplicate

	o := fx.p.Process(context.Background(), "run", rawListing("1", 800))
	if o.State != StateDuplicate || o.Sniper {
		t.Errorf("expected duplicate without sniper hit, got %+v", o)
	}
	if fx.store.hasEvent(database.EventSniperHit) {
		t.Error("no sniper event for a duplicate")
	}
}

func TestFatalNormalizerErrorQueuesAndContinues(t *testing.T) {
	fx := newFixture(t, nil, Options{PacingDelay: time.Second})
	fx.norm.err = gateway.ErrDailyBudgetExhausted

	src := collect.StaticSource{SourceName: "static", Listings: []listing.RawListing{
		rawListing("1", 800),
		rawListing("2", 900),
		rawListing("3", 20),
	}}
	r := fx.p.Run(context.Background(), []collect.Source{src})

	want := Stats{Found: 3, Processed: 3, Rejected: 1, Errors: 2}
	if r.Total != want {
		t.Errorf("stats = %+v, want %+v", r.Total, want)
	}
	if fx.sleeps != 2 {
		t.Errorf("expected pacing between 3 listings, got %d sleeps", fx.sleeps)
	}

	payload, ok := fx.store.failed["kleinanzeigen:1"]
	if !ok {
		t.Fatal("expected failed listing to be queued")
	}
	var raw listing.RawListing
	if err := json.Unmarshal([]byte(payload), &raw); err != nil || raw.SourceAdID != "1" {
		t.Errorf("queued payload not a raw listing: %v %q", err, payload)
	}
	if !errors.Is(r.Targets[0].Outcomes[0].Err, gateway.ErrDailyBudgetExhausted) {
		t.Errorf("expected wrapped budget error, got %v", r.Targets[0].Outcomes[0].Err)
	}
	if !fx.store.hasEvent(database.EventRunStarted) || !fx.store.hasEvent(database.EventRunFinished) {
		t.Errorf("expected run events, got %v", fx.store.events)
	}
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Fetch(context.Context) ([]listing.RawListing, error) {
	return nil, errors.New("feed unavailable")
}

func TestRunIsolatesTargetFailure(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{TargetConcurrency: 2})

	ok := collect.StaticSource{SourceName: "ok", Listings: []listing.RawListing{rawListing("1", 800)}}
	r := fx.p.Run(context.Background(), []collect.Source{failingSource{}, ok})

	if r.Targets[0].Err == nil || r.Targets[0].Name != "broken" {
		t.Errorf("expected failing target error, got %+v", r.Targets[0])
	}
	if r.Total.Added != 1 || r.Total.SniperHits != 1 || r.Total.Hot != 1 {
		t.Errorf("unexpected totals %+v", r.Total)
	}
	if r.RunID == "" || fx.store.inserted[0].RunID != r.RunID {
		t.Error("listing should carry the run id")
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{DryRun: true})

	src := collect.StaticSource{SourceName: "static", Listings: []listing.RawListing{rawListing("1", 800)}}
	r := fx.p.Run(context.Background(), []collect.Source{src})

	if r.Targets[0].Outcomes[0].State != StateFactsExtracted {
		t.Errorf("expected dry run to stop after facts, got %s", r.Targets[0].Outcomes[0].State)
	}
	if fx.norm.calls != 0 || len(fx.store.inserted) != 0 || len(fx.store.events) != 0 {
		t.Error("dry run must not call the model or write")
	}
}

func TestRetryFailed(t *testing.T) {
	fx := newFixture(t, []float64{1000, 1000, 1000}, Options{})

	good, _ := json.Marshal(rawListing("1", 800))
	fx.store.due = []database.FailedListing{
		{ID: 1, SourcePlatform: "kleinanzeigen", SourceAdID: "1", RawPayload: string(good), Attempts: 1},
		{ID: 2, SourcePlatform: "kleinanzeigen", SourceAdID: "2", RawPayload: "{broken", Attempts: 4},
		{ID: 3, SourcePlatform: "kleinanzeigen", SourceAdID: "3", RawPayload: "{broken", Attempts: 2},
	}

	r, err := fx.p.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if r.Attempted != 3 || r.Resolved != 1 || r.Discarded != 1 || r.Requeued != 1 {
		t.Errorf("unexpected retry result %+v", r)
	}
	if len(fx.store.resolved) != 1 || fx.store.resolved[0] != 1 {
		t.Errorf("expected entry 1 resolved, got %v", fx.store.resolved)
	}
	if len(fx.store.failed) != 0 {
		t.Error("retries must not re-enqueue entries")
	}
	if !fx.store.hasEvent(database.EventFailedDiscarded) || !fx.store.hasEvent(database.EventFailedRequeued) {
		t.Errorf("expected discard and requeue events, got %v", fx.store.events)
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{Found: 3, Added: 1}
	if !strings.Contains(s.String(), "3 found") || !strings.Contains(s.String(), "1 added") {
		t.Errorf("unexpected stats string %q", s.String())
	}
}

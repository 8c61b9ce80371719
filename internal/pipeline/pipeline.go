// Package pipeline sequences the per-listing stages and aggregates batch
// statistics for a collection run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/BikeScout/internal/collect"
	"github.com/TobiSchelling/BikeScout/internal/condition"
	"github.com/TobiSchelling/BikeScout/internal/database"
	"github.com/TobiSchelling/BikeScout/internal/facts"
	"github.com/TobiSchelling/BikeScout/internal/filter"
	"github.com/TobiSchelling/BikeScout/internal/listing"
	"github.com/TobiSchelling/BikeScout/internal/llm"
	"github.com/TobiSchelling/BikeScout/internal/ranking"
	"github.com/TobiSchelling/BikeScout/internal/valuation"
)

// State is a listing's position in the per-listing state machine.
type State string

const (
	StateReceived       State = "received"
	StateFiltered       State = "filtered"
	StateFactsExtracted State = "facts_extracted"
	StateNormalized     State = "normalized"
	StateGraded         State = "graded"
	StateValued         State = "valued"
	StateRanked         State = "ranked"
	StatePersisted      State = "persisted"

	StateRejected  State = "rejected"
	StateDuplicate State = "duplicate"
	StateFailed    State = "failed"
)

// Store is the persistence the pipeline writes to.
type Store interface {
	ListingExists(platform, adID string) (bool, error)
	InsertListing(ctx context.Context, l database.Listing) (database.Outcome, int64, error)
	EnqueueFailed(platform, adID, url, payload, lastErr string) error
	GetDueFailed(limit int) ([]database.FailedListing, error)
	ResolveFailed(id int64) error
	RecordFailedAttempt(id int64, lastErr string) (bool, error)
	LogEvent(runID, eventType, source string, details map[string]any)
}

// Normalizer produces the merged listing record.
type Normalizer interface {
	Normalize(ctx context.Context, raw listing.RawListing, f listing.ExtractedFacts, images []llm.Image) (listing.NormalizedListing, error)
}

// Grader produces a condition report.
type Grader interface {
	Analyze(ctx context.Context, n listing.NormalizedListing, images []llm.Image) (listing.ConditionReport, error)
}

// Valuer prices a listing against market history.
type Valuer interface {
	FMV(ctx context.Context, brand, model string) (float64, int, error)
	PreCheck(fmv, price float64) listing.Verdict
	Valuate(ctx context.Context, n listing.NormalizedListing, report *listing.ConditionReport) (listing.ValuationResult, error)
}

// ImageSource downloads listing images for the model.
type ImageSource interface {
	Fetch(ctx context.Context, urls []string) []llm.Image
}

// Deps are the stage implementations.
type Deps struct {
	Store      Store
	Filter     *filter.Filter
	Engine     *facts.Engine
	Normalizer Normalizer
	Grader     Grader
	Valuer     Valuer
	Images     ImageSource
	Scorer     ranking.Scorer
}

// Options control batch execution.
type Options struct {
	PacingDelay       time.Duration
	TargetConcurrency int
	RetryBatchSize    int
	DryRun            bool
}

// Stats are the batch counters.
type Stats struct {
	Found      int
	Processed  int
	Added      int
	Duplicates int
	Rejected   int
	Errors     int
	Hot        int
	SniperHits int
}

func (s *Stats) add(o Stats) {
	s.Found += o.Found
	s.Processed += o.Processed
	s.Added += o.Added
	s.Duplicates += o.Duplicates
	s.Rejected += o.Rejected
	s.Errors += o.Errors
	s.Hot += o.Hot
	s.SniperHits += o.SniperHits
}

func (s Stats) String() string {
	return fmt.Sprintf("%d found, %d processed, %d added, %d duplicates, %d rejected, %d errors, %d hot, %d sniper hits",
		s.Found, s.Processed, s.Added, s.Duplicates, s.Rejected, s.Errors, s.Hot, s.SniperHits)
}

// Outcome is the terminal result of one listing.
type Outcome struct {
	Key       string
	State     State
	Reason    string
	ListingID int64
	Hotness   int
	Hot       bool
	Sniper    bool
	Err       error
}

func (o Outcome) count(s *Stats) {
	s.Processed++
	switch o.State {
	case StatePersisted:
		s.Added++
		if o.Hot {
			s.Hot++
		}
		if o.Sniper {
			s.SniperHits++
		}
	case StateDuplicate:
		s.Duplicates++
	case StateRejected:
		s.Rejected++
	case StateFailed:
		s.Errors++
	}
}

// TargetResult is the outcome of one source in a run.
type TargetResult struct {
	Name     string
	Stats    Stats
	Outcomes []Outcome
	Err      error
}

// Result holds the results of a full run.
type Result struct {
	RunID   string
	Targets []TargetResult
	Total   Stats
}

// Pipeline runs listings through the stages.
type Pipeline struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.TargetConcurrency <= 0 {
		opts.TargetConcurrency = 1
	}
	if opts.RetryBatchSize <= 0 {
		opts.RetryBatchSize = 10
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now, sleep: sleepCtx}
}

// Run collects every source and processes its listings. Sources run
// concurrently up to TargetConcurrency; the listings of one source are
// processed sequentially with the pacing delay between them.
func (p *Pipeline) Run(ctx context.Context, sources []collect.Source) *Result {
	r := &Result{RunID: uuid.NewString(), Targets: make([]TargetResult, len(sources))}
	start := p.now()
	p.event(r.RunID, database.EventRunStarted, "", map[string]any{"targets": len(sources), "dry_run": p.opts.DryRun})

	// Target failures are recorded per target and never cancel the others.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.TargetConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			r.Targets[i] = p.runTarget(gctx, r.RunID, src)
			return nil
		})
	}
	_ = g.Wait()

	for _, t := range r.Targets {
		r.Total.add(t.Stats)
	}
	p.event(r.RunID, database.EventRunFinished, "", map[string]any{
		"found": r.Total.Found, "added": r.Total.Added, "duplicates": r.Total.Duplicates,
		"rejected": r.Total.Rejected, "errors": r.Total.Errors, "hot": r.Total.Hot,
		"sniper_hits": r.Total.SniperHits, "elapsed_s": int(p.now().Sub(start).Seconds()),
	})
	log.Printf("Run %s complete: %s", r.RunID, r.Total)
	return r
}

func (p *Pipeline) runTarget(ctx context.Context, runID string, src collect.Source) TargetResult {
	tr := TargetResult{Name: src.Name()}
	raws, err := src.Fetch(ctx)
	if err != nil {
		log.Printf("Error collecting %s: %v", src.Name(), err)
		tr.Err = err
		return tr
	}
	tr.Stats.Found = len(raws)

	for i, raw := range raws {
		if i > 0 && p.opts.PacingDelay > 0 {
			if err := p.sleep(ctx, p.opts.PacingDelay); err != nil {
				tr.Err = err
				break
			}
		}
		o := p.Process(ctx, runID, raw)
		o.count(&tr.Stats)
		tr.Outcomes = append(tr.Outcomes, o)
	}
	log.Printf("Target %s: %s", src.Name(), tr.Stats)
	return tr
}

// Process runs one listing to a terminal state. Listings that fail after the
// filter are queued for retry.
func (p *Pipeline) Process(ctx context.Context, runID string, raw listing.RawListing) Outcome {
	o := p.process(ctx, runID, raw)
	if o.State == StateFailed && !p.opts.DryRun {
		payload, _ := json.Marshal(raw)
		if err := p.deps.Store.EnqueueFailed(raw.SourcePlatform, raw.SourceAdID, raw.URL, string(payload), o.Err.Error()); err != nil {
			log.Printf("Error queueing failed listing %s: %v", o.Key, err)
		}
	}
	return o
}

func (p *Pipeline) process(ctx context.Context, runID string, raw listing.RawListing) Outcome {
	o := Outcome{Key: raw.Key(), State: StateReceived}
	source := raw.SourcePlatform

	// Received → Filtered
	if res := p.deps.Filter.CheckListing(raw); !res.Pass {
		o.State, o.Reason = StateRejected, res.Reason
		if filter.IsTitleKill(res.Reason) {
			log.Printf("Title kill: %q (%s)", raw.Title, res.Reason)
		}
		p.event(runID, database.EventListingRejected, source, map[string]any{"key": o.Key, "reason": res.Reason})
		return o
	}
	o.State = StateFiltered

	if !p.opts.DryRun {
		exists, err := p.deps.Store.ListingExists(raw.SourcePlatform, raw.SourceAdID)
		if err != nil {
			return p.fail(runID, source, o, fmt.Errorf("existence check: %w", err))
		}
		if exists {
			o.State = StateDuplicate
			p.event(runID, database.EventListingDuplicate, source, map[string]any{"key": o.Key})
			return o
		}
	}

	// Filtered → FactsExtracted
	extracted := p.deps.Engine.Extract(raw)
	o.State = StateFactsExtracted
	if p.opts.DryRun {
		return o
	}

	var images []llm.Image
	if p.deps.Images != nil {
		var urls []string
		for _, img := range listing.PrepareImages(raw.Images, raw.PrimaryImage) {
			urls = append(urls, img.URL)
		}
		images = p.deps.Images.Fetch(ctx, urls)
	}

	// FactsExtracted → Normalized
	n, err := p.deps.Normalizer.Normalize(ctx, raw, extracted, images)
	if err != nil {
		return p.fail(runID, source, o, fmt.Errorf("normalizing: %w", err))
	}
	o.State = StateNormalized

	// Normalized → Graded
	report, err := p.grade(ctx, n, images)
	if err != nil {
		return p.fail(runID, source, o, fmt.Errorf("grading: %w", err))
	}
	o.State = StateGraded
	flagForReview(&n, report)

	// Graded → Valued
	v, err := p.deps.Valuer.Valuate(ctx, n, &report)
	if err != nil {
		return p.fail(runID, source, o, fmt.Errorf("valuing: %w", err))
	}
	o.State = StateValued

	// Valued → Ranked
	score := p.deps.Scorer.Rank(v.FMV, raw.Price, raw.Views, raw.PublishedAt, p.now())
	o.State = StateRanked
	o.Hotness, o.Hot, o.Sniper = score.Hotness, score.Hot, v.Sniper.Hit

	// Ranked → Persisted
	l := database.NewListing(n, report, v, score.Hotness)
	l.IsActive = !n.NeedsReview
	l.RunID = runID
	outcome, id, err := p.deps.Store.InsertListing(ctx, l)
	if err != nil {
		return p.fail(runID, source, o, fmt.Errorf("persisting: %w", err))
	}
	o.ListingID = id
	if outcome == database.OutcomeDuplicate {
		o.State = StateDuplicate
		o.Hot, o.Sniper = false, false
		p.event(runID, database.EventListingDuplicate, source, map[string]any{"key": o.Key, "listing_id": id})
		return o
	}
	o.State = StatePersisted

	details := map[string]any{"key": o.Key, "listing_id": id, "title": raw.Title, "price": raw.Price, "hotness": score.Hotness}
	if v.HasFMV() {
		details["fmv"] = *v.FMV
		details["fmv_confidence"] = v.Confidence
	}
	p.event(runID, database.EventListingAdded, source, details)
	if score.Hot {
		p.event(runID, database.EventHotListing, source, details)
	}
	if v.Sniper.Hit {
		details["reason"] = v.Sniper.Reason
		p.event(runID, database.EventSniperHit, source, details)
		log.Printf("Sniper hit: %s (%s)", raw.Title, v.Sniper.Reason)
	}
	return o
}

// grade runs the condition analyzer unless the listing already misses the
// cheapest acquisition threshold, in which case the default report is used.
func (p *Pipeline) grade(ctx context.Context, n listing.NormalizedListing, images []llm.Image) (listing.ConditionReport, error) {
	fmv, _, err := p.deps.Valuer.FMV(ctx, n.Facts.Brand, n.Facts.Model)
	switch {
	case err == nil:
		if pre := p.deps.Valuer.PreCheck(fmv, n.Raw.Price); !pre.Hit {
			return condition.Default("price above acquisition threshold"), nil
		}
	case errors.Is(err, valuation.ErrInsufficientComparables):
	default:
		return listing.ConditionReport{}, err
	}
	return p.deps.Grader.Analyze(ctx, n, images)
}

// flagForReview turns the analyzer's consistency flags into review reasons.
func flagForReview(n *listing.NormalizedListing, c listing.ConditionReport) {
	for _, f := range c.Flags {
		key := strings.Join(strings.Fields(strings.ToLower(f)), "_")
		if key != "" {
			n.AddReview("condition_" + key)
		}
	}
}

func (p *Pipeline) fail(runID, source string, o Outcome, err error) Outcome {
	log.Printf("Listing %s failed at %s: %v", o.Key, o.State, err)
	o.Err = err
	o.Reason = err.Error()
	p.event(runID, database.EventListingFailed, source, map[string]any{"key": o.Key, "stage": string(o.State), "error": err.Error()})
	o.State = StateFailed
	return o
}

// RetryResult summarizes a failed-queue retry pass.
type RetryResult struct {
	RunID     string
	Attempted int
	Resolved  int
	Requeued  int
	Discarded int
	Stats     Stats
}

// RetryFailed reprocesses due entries of the failed-listing queue. Entries
// that reach a terminal state other than Failed are resolved; the rest count
// an attempt and are discarded after the maximum attempts.
func (p *Pipeline) RetryFailed(ctx context.Context) (*RetryResult, error) {
	items, err := p.deps.Store.GetDueFailed(p.opts.RetryBatchSize)
	if err != nil {
		return nil, err
	}
	r := &RetryResult{RunID: uuid.NewString()}
	if len(items) == 0 {
		log.Println("No failed listings due for retry")
		return r, nil
	}

	for i, item := range items {
		if i > 0 && p.opts.PacingDelay > 0 {
			if err := p.sleep(ctx, p.opts.PacingDelay); err != nil {
				return r, err
			}
		}
		r.Attempted++

		var raw listing.RawListing
		o := Outcome{Key: item.SourcePlatform + ":" + item.SourceAdID, State: StateFailed}
		if err := json.Unmarshal([]byte(item.RawPayload), &raw); err != nil {
			o.Err = fmt.Errorf("decoding payload: %w", err)
		} else {
			o = p.process(ctx, r.RunID, raw)
		}
		r.Stats.Found++
		o.count(&r.Stats)

		if o.State != StateFailed {
			if err := p.deps.Store.ResolveFailed(item.ID); err != nil {
				return r, err
			}
			r.Resolved++
			continue
		}

		discarded, err := p.deps.Store.RecordFailedAttempt(item.ID, o.Err.Error())
		if err != nil {
			return r, err
		}
		details := map[string]any{"key": o.Key, "attempts": item.Attempts + 1, "error": o.Err.Error()}
		if discarded {
			r.Discarded++
			p.event(r.RunID, database.EventFailedDiscarded, item.SourcePlatform, details)
		} else {
			r.Requeued++
			p.event(r.RunID, database.EventFailedRequeued, item.SourcePlatform, details)
		}
	}
	log.Printf("Retry complete: %d attempted, %d resolved, %d requeued, %d discarded",
		r.Attempted, r.Resolved, r.Requeued, r.Discarded)
	return r, nil
}

func (p *Pipeline) event(runID, eventType, source string, details map[string]any) {
	if p.opts.DryRun {
		return
	}
	p.deps.Store.LogEvent(runID, eventType, source, details)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

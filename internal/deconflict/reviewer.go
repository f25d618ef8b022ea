// Package deconflict verifies candidate event clusters with an LLM judge,
// confirming unambiguous clusters cheaply and splitting ambiguous ones into
// per-event groups.
package deconflict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// Options configures a Reviewer.
type Options struct {
	Concurrency int  // parallel judge calls; default 1 (sequential)
	DryRun      bool // review but write nothing
}

// Reviewer consumes unreviewed clusters and writes verdicts back.
type Reviewer struct {
	store cluster.Store
	judge Judge
	opts  Options
}

// NewReviewer creates a Reviewer.
func NewReviewer(store cluster.Store, judge Judge, opts Options) *Reviewer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Reviewer{store: store, judge: judge, opts: opts}
}

// Summary reports one review run. Per-cluster judge failures are counted,
// never fatal.
type Summary struct {
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"` // trivial verdicts without an LLM call
	Reviewed  int  `json:"reviewed"`
	Confirmed int  `json:"confirmed"`
	Split     int  `json:"split"`
	Errors    int  `json:"errors"`
	Saved     int  `json:"saved"`
	DryRun    bool `json:"dry_run,omitempty"`
}

// Run reviews all unreviewed clusters for (country, date); batch <= 0 means
// every batch. Re-invoking on reviewed clusters is a no-op: they are
// excluded from the input set.
func (r *Reviewer) Run(ctx context.Context, country string, date time.Time, batch int) (*Summary, error) {
	log := zap.L().With(
		zap.String("stage", "deconflict"),
		zap.String("country", country),
		zap.String("date", date.Format("2006-01-02")),
	)

	clusters, err := r.store.ListUnreviewed(ctx, country, date, batch)
	if err != nil {
		return nil, err
	}

	sum := &Summary{DryRun: r.opts.DryRun}
	if len(clusters) == 0 {
		log.Info("no unreviewed clusters")
		return sum, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, cl := range clusters {
		g.Go(func() error {
			verdict, trivial, failed := r.reviewOne(gctx, cl)

			mu.Lock()
			sum.Processed++
			switch {
			case trivial:
				sum.Skipped++
			case failed:
				sum.Reviewed++
				sum.Errors++
				sum.Confirmed++ // fallback is a single-group confirmation
			default:
				sum.Reviewed++
				if len(verdict.Groups) > 1 {
					sum.Split++
				} else {
					sum.Confirmed++
				}
			}
			mu.Unlock()

			if r.opts.DryRun {
				return nil
			}
			if err := r.store.SaveVerdict(gctx, cl.ID, verdict); err != nil {
				return err
			}
			mu.Lock()
			sum.Saved++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("review complete",
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("reviewed", sum.Reviewed),
		zap.Int("confirmed", sum.Confirmed),
		zap.Int("split", sum.Split),
		zap.Int("errors", sum.Errors))
	return sum, nil
}

// reviewOne produces the verdict for a single cluster. trivial reports that
// no LLM call was needed; failed reports a judge failure absorbed into the
// single-group fallback.
func (r *Reviewer) reviewOne(ctx context.Context, cl *model.EventCluster) (verdict *model.RefinedClusters, trivial, failed bool) {
	unique := cl.UniqueNames()

	if cl.Noise {
		return model.SingleGroup(unique, "noise cluster; no review needed"), true, false
	}
	if len(unique) <= 1 {
		return model.SingleGroup(unique, "single unique name; no review needed"), true, false
	}

	v, err := r.judge.Review(ctx, unique)
	if err != nil {
		zap.L().Warn("judge failed; treating cluster as one event",
			zap.Int64("cluster_id", cl.ID),
			zap.Error(err))
		// Fail-safe toward under-splitting, with the reason on record.
		fallback := model.SingleGroup(unique, fmt.Sprintf("judge failure, treated as one event: %v", err))
		fallback.Confidence = 0
		return fallback, false, true
	}

	return v, false, false
}

// Package consolidate links same-event canonical records across days and
// weeks: pairwise embedding similarity builds a graph, connected components
// elect a master, and every other member points at it.
package consolidate

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/vectormath"
)

// Options configures a Consolidator.
type Options struct {
	SimilarityThreshold float64 // cosine similarity at or above which two events link
	ChunkSize           int     // rows of the similarity matrix processed per pass
	DryRun              bool    // compute links, write nothing
}

// Consolidator runs the per-country cross-time consolidation pass.
type Consolidator struct {
	store Store
	opts  Options
}

// NewConsolidator creates a Consolidator.
func NewConsolidator(store Store, opts Options) *Consolidator {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.85
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	return &Consolidator{store: store, opts: opts}
}

// Summary reports one consolidation run.
type Summary struct {
	Events      int  `json:"events"`
	NoEmbedding int  `json:"no_embedding"`
	Components  int  `json:"components"` // size >= 2 only
	Linked      int  `json:"linked"`
	DryRun      bool `json:"dry_run,omitempty"`
}

// Run consolidates one country's unlinked canonical events. Events already
// carrying a master are excluded from the input, so a repeat run over an
// unchanged corpus links nothing. Never creates or deletes event rows.
//
// Two Runs for the same country must not execute concurrently: the pass
// reads the whole event set, then writes links non-transactionally.
func (c *Consolidator) Run(ctx context.Context, country string) (*Summary, error) {
	log := zap.L().With(
		zap.String("stage", "consolidate"),
		zap.String("country", country),
	)

	skipped, err := c.store.CountMissingEmbedding(ctx, country)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("events without embedding skipped", zap.Int("count", skipped))
	}

	events, err := c.store.ListUnconsolidated(ctx, country)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Events: len(events), NoEmbedding: skipped, DryRun: c.opts.DryRun}
	if len(events) < 2 {
		log.Info("nothing to consolidate", zap.Int("events", len(events)))
		return sum, nil
	}

	adj := c.buildAdjacency(log, events)
	components := connectedComponents(len(events), adj)

	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}
		sum.Components++

		members := make([]*model.CanonicalEvent, len(comp))
		for i, idx := range comp {
			members[i] = events[idx]
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].ArticleCount != members[j].ArticleCount {
				return members[i].ArticleCount > members[j].ArticleCount
			}
			if members[i].MentionDays != members[j].MentionDays {
				return members[i].MentionDays > members[j].MentionDays
			}
			return members[i].ID < members[j].ID
		})

		master := members[0]
		childIDs := make([]int64, 0, len(members)-1)
		for _, m := range members[1:] {
			childIDs = append(childIDs, m.ID)
		}

		log.Info("component consolidated",
			zap.Int64("master_id", master.ID),
			zap.String("master_name", master.Name),
			zap.Int("children", len(childIDs)),
			zap.Bool("dry_run", c.opts.DryRun))

		if !c.opts.DryRun {
			if err := c.store.LinkMaster(ctx, master.ID, childIDs); err != nil {
				return nil, err
			}
		}
		sum.Linked += len(childIDs)
	}

	log.Info("consolidation complete",
		zap.Int("events", sum.Events),
		zap.Int("components", sum.Components),
		zap.Int("linked", sum.Linked))
	return sum, nil
}

// buildAdjacency computes the sparse thresholded similarity graph. The full
// matrix is never materialized: normalized vectors reduce cosine similarity
// to a dot product, and rows are walked in chunks with progress logged, since
// a large country's pass is quadratic and can run for minutes.
func (c *Consolidator) buildAdjacency(log *zap.Logger, events []*model.CanonicalEvent) map[int][]int {
	n := len(events)
	unit := make([][]float64, n)
	for i, ev := range events {
		unit[i] = vectormath.Unit(ev.Embedding)
	}

	adj := make(map[int][]int)
	start := time.Now()
	for lo := 0; lo < n; lo += c.opts.ChunkSize {
		hi := lo + c.opts.ChunkSize
		if hi > n {
			hi = n
		}
		for i := lo; i < hi; i++ {
			for j := i + 1; j < n; j++ {
				if floats.Dot(unit[i], unit[j]) >= c.opts.SimilarityThreshold {
					adj[i] = append(adj[i], j)
					adj[j] = append(adj[j], i)
				}
			}
		}
		log.Info("similarity pass progress",
			zap.Int("rows_done", hi),
			zap.Int("rows_total", n),
			zap.Duration("elapsed", time.Since(start)))
	}
	return adj
}

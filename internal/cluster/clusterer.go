// Package cluster groups one day's raw event mentions into candidate event
// clusters using density clustering over name embeddings, and partitions the
// result into bounded review batches.
package cluster

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/textnorm"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/vectormath"
)

// Embedder maps normalized event names to dense vectors, order-preserving.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// Options configures a Clusterer.
type Options struct {
	Epsilon         float64  // cosine-distance eps; smaller = stricter
	MinSamples      int      // density threshold; 1 assigns every point
	MaxBatchMembers int      // review batch size bound (total members)
	Targets         []string // configured target recipient countries
	Stoplist        []string // generic nouns dropped during normalization
	DryRun          bool     // compute everything, write nothing
}

// Clusterer runs same-day clustering for one (country, date) pair.
type Clusterer struct {
	store    Store
	embedder Embedder
	norm     *textnorm.Normalizer
	opts     Options
}

// NewClusterer creates a Clusterer.
func NewClusterer(store Store, embedder Embedder, opts Options) *Clusterer {
	if opts.Epsilon <= 0 {
		opts.Epsilon = 0.15
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 1
	}
	if opts.MaxBatchMembers <= 0 {
		opts.MaxBatchMembers = 40
	}
	return &Clusterer{
		store:    store,
		embedder: embedder,
		norm:     textnorm.New(opts.Stoplist),
		opts:     opts,
	}
}

// DayResult summarizes one clustering run.
type DayResult struct {
	Mentions      int  `json:"mentions"`
	Clusters      int  `json:"clusters"`
	NoiseClusters int  `json:"noise_clusters"`
	Batches       int  `json:"batches"`
	Saved         int  `json:"saved"`
	DryRun        bool `json:"dry_run,omitempty"`
}

// Run clusters all raw mentions for one (country, date). An empty mention
// set is a no-op with zero counts. A fetch or embedding failure is fatal for
// the day and persists nothing. Re-clustering an already-clustered day is a
// caller error.
func (c *Clusterer) Run(ctx context.Context, country string, date time.Time) (*DayResult, error) {
	log := zap.L().With(
		zap.String("stage", "cluster"),
		zap.String("country", country),
		zap.String("date", date.Format("2006-01-02")),
	)

	if !c.opts.DryRun {
		exists, err := c.store.HasClusters(ctx, country, date)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, eris.Errorf("cluster: %s %s already clustered; re-clustering a processed day is a caller error",
				country, date.Format("2006-01-02"))
		}
	}

	mentions, err := c.store.ListMentions(ctx, country, date, c.opts.Targets)
	if err != nil {
		return nil, err
	}
	if len(mentions) == 0 {
		log.Info("no mentions for day")
		return &DayResult{DryRun: c.opts.DryRun}, nil
	}

	normalized := make([]string, 0, len(mentions))
	kept := make([]model.RawMention, 0, len(mentions))
	for _, m := range mentions {
		n := c.norm.Normalize(m.EventName)
		if n == "" {
			continue
		}
		normalized = append(normalized, n)
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		log.Info("no usable mentions after normalization")
		return &DayResult{Mentions: len(mentions), DryRun: c.opts.DryRun}, nil
	}

	vecs, err := c.embedder.EmbedMany(ctx, normalized)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: embed %d mentions for %s %s",
			len(kept), country, date.Format("2006-01-02"))
	}
	if len(vecs) != len(kept) {
		return nil, eris.Errorf("cluster: embedder returned %d vectors for %d mentions", len(vecs), len(kept))
	}

	labels := dbscan(vecs, c.opts.Epsilon, c.opts.MinSamples)
	clusters := buildClusters(country, date, kept, vecs, labels)
	batches := assignBatches(clusters, c.opts.MaxBatchMembers)

	result := &DayResult{
		Mentions: len(mentions),
		Clusters: len(clusters),
		Batches:  batches,
		DryRun:   c.opts.DryRun,
	}
	for _, cl := range clusters {
		if cl.Noise {
			result.NoiseClusters++
		}
	}

	if c.opts.DryRun {
		log.Info("dry run, skipping persist",
			zap.Int("clusters", result.Clusters),
			zap.Int("batches", result.Batches))
		return result, nil
	}

	if err := c.store.InsertClusters(ctx, clusters); err != nil {
		return nil, err
	}
	result.Saved = len(clusters)

	log.Info("day clustered",
		zap.Int("mentions", result.Mentions),
		zap.Int("clusters", result.Clusters),
		zap.Int("noise", result.NoiseClusters),
		zap.Int("batches", result.Batches))
	return result, nil
}

// buildClusters groups labeled mentions into EventCluster rows with centroid
// and representative name. Mentions labeled noise each get a singleton
// cluster with a fresh label.
func buildClusters(country string, date time.Time, mentions []model.RawMention, vecs [][]float64, labels []int) []*model.EventCluster {
	byLabel := make(map[int][]int)
	maxLabel := -1
	for i, l := range labels {
		if l == model.NoiseLabel {
			continue
		}
		byLabel[l] = append(byLabel[l], i)
		if l > maxLabel {
			maxLabel = l
		}
	}
	// Noise points become their own singleton clusters.
	for i, l := range labels {
		if l == model.NoiseLabel {
			maxLabel++
			byLabel[maxLabel] = []int{i}
		}
	}

	clusters := make([]*model.EventCluster, 0, len(byLabel))
	for label := 0; label <= maxLabel; label++ {
		members := byLabel[label]
		if len(members) == 0 {
			continue
		}

		memberVecs := make([][]float64, len(members))
		names := make([]string, len(members))
		docIDs := make([]int64, len(members))
		for j, idx := range members {
			memberVecs[j] = vecs[idx]
			names[j] = mentions[idx].EventName
			docIDs[j] = mentions[idx].DocumentID
		}

		centroid := vectormath.Centroid(memberVecs)
		rep := names[0]
		if n := vectormath.Nearest(centroid, memberVecs); n >= 0 {
			rep = names[n]
		}

		clusters = append(clusters, &model.EventCluster{
			Country:        country,
			ClusterDate:    date,
			Label:          label,
			MemberNames:    names,
			MemberDocIDs:   docIDs,
			Size:           len(members),
			Noise:          len(members) == 1,
			Centroid:       centroid,
			Representative: rep,
			Processed:      true,
		})
	}

	return clusters
}

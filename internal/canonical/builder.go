// Package canonical promotes reviewed clusters into durable canonical
// events and their per-day mention records.
package canonical

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// Embedder produces the identity embedding for a canonical name.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options configures a Builder.
type Options struct {
	MergeWindowDays int  // how far past an event's window a date may fall and still merge
	DryRun          bool // resolve and report, write nothing
}

// Builder turns reviewed clusters into canonical events and daily mentions.
type Builder struct {
	store    Store
	clusters cluster.Store
	embedder Embedder
	opts     Options
}

// NewBuilder creates a Builder.
func NewBuilder(store Store, clusters cluster.Store, embedder Embedder, opts Options) *Builder {
	return &Builder{store: store, clusters: clusters, embedder: embedder, opts: opts}
}

// Summary reports one promotion run.
type Summary struct {
	Clusters int  `json:"clusters"`
	Groups   int  `json:"groups"`
	Created  int  `json:"created"`
	Merged   int  `json:"merged"`
	Mentions int  `json:"mentions"`
	Errors   int  `json:"errors"`
	DryRun   bool `json:"dry_run,omitempty"`
}

// Run promotes every reviewed cluster for (country, date); batch <= 0 means
// all batches. Safe to re-run: merges are keyed on name+window, daily
// mentions are replaced per (event, date), and totals are recomputed from
// the daily mentions rather than incremented.
func (b *Builder) Run(ctx context.Context, country string, date time.Time, batch int) (*Summary, error) {
	log := zap.L().With(
		zap.String("stage", "promote"),
		zap.String("country", country),
		zap.String("date", date.Format("2006-01-02")),
	)

	clusters, err := b.clusters.ListReviewed(ctx, country, date, batch)
	if err != nil {
		return nil, err
	}

	sum := &Summary{DryRun: b.opts.DryRun}
	if len(clusters) == 0 {
		log.Info("no reviewed clusters to promote")
		return sum, nil
	}

	// Names a dry run would have created, so later groups in the same run
	// count as merges the way a real run would.
	dryCreated := make(map[string]bool)

	for _, cl := range clusters {
		if cl.Refined == nil {
			log.Warn("reviewed cluster without verdict", zap.Int64("cluster_id", cl.ID))
			sum.Errors++
			continue
		}
		sum.Clusters++
		for _, idx := range cl.Refined.Groups {
			sum.Groups++
			if err := b.promoteGroup(ctx, cl, idx, dryCreated, sum); err != nil {
				// Consistency errors abort the run; anything else is
				// counted and the next group proceeds.
				if eris.Is(err, ErrEventMissing) {
					return nil, err
				}
				log.Warn("group promotion failed",
					zap.Int64("cluster_id", cl.ID),
					zap.Error(err))
				sum.Errors++
			}
		}
	}

	log.Info("promotion complete",
		zap.Int("clusters", sum.Clusters),
		zap.Int("groups", sum.Groups),
		zap.Int("created", sum.Created),
		zap.Int("merged", sum.Merged),
		zap.Int("mentions", sum.Mentions),
		zap.Int("errors", sum.Errors),
		zap.Bool("dry_run", sum.DryRun))
	return sum, nil
}

// promoteGroup resolves one verdict group to a canonical event and writes
// its daily mention.
func (b *Builder) promoteGroup(ctx context.Context, cl *model.EventCluster, groupIdx []int, dryCreated map[string]bool, sum *Summary) error {
	names, docIDs := groupMembers(cl, groupIdx)
	if len(names) == 0 {
		return nil
	}
	canonName := majorityName(cl.MemberNames, names)

	sources, err := b.store.DocumentSources(ctx, docIDs)
	if err != nil {
		return err
	}
	srcNames := dedupedSources(docIDs, sources)
	phase := inferPhase(names)

	embedding, err := b.embedder.Embed(ctx, canonName)
	if err != nil {
		return err
	}

	existing, err := b.store.FindMatch(ctx, cl.Country, canonName, cl.ClusterDate, b.opts.MergeWindowDays)
	if err != nil {
		return err
	}

	dryKey := cl.Country + "|" + strings.ToLower(canonName)

	var eventID int64
	switch {
	case existing != nil:
		sum.Merged++
		eventID = existing.ID
		if !b.opts.DryRun {
			alt := mergeAltNames(existing, canonName, names)
			if len(alt) != len(existing.AltNames) {
				if err := b.store.SetAltNames(ctx, eventID, alt); err != nil {
					return err
				}
			}
		}
	case b.opts.DryRun && dryCreated[dryKey]:
		// An earlier group in this run would already have created it.
		sum.Merged++
	default:
		sum.Created++
		if b.opts.DryRun {
			dryCreated[dryKey] = true
			break
		}
		eventID, err = b.store.CreateEvent(ctx, &model.CanonicalEvent{
			Country:      cl.Country,
			Name:         canonName,
			AltNames:     altNamesFor(canonName, names),
			FirstMention: cl.ClusterDate,
			LastMention:  cl.ClusterDate,
			StoryPhase:   phase,
			Embedding:    embedding,
		})
		if err != nil {
			return err
		}
	}

	if b.opts.DryRun {
		sum.Mentions++
		return nil
	}

	if err := b.store.UpsertDailyMention(ctx, &model.DailyEventMention{
		CanonicalEventID: eventID,
		MentionDate:      cl.ClusterDate,
		ArticleCount:     len(docIDs),
		Headline:         canonName,
		SourceNames:      srcNames,
		MentionContext:   phase,
		DocumentIDs:      docIDs,
	}); err != nil {
		return err
	}
	sum.Mentions++

	return b.store.RefreshTotals(ctx, eventID)
}

// groupMembers resolves a verdict group's 1-based unique-name indices back
// to member names and set-deduplicated document ids.
func groupMembers(cl *model.EventCluster, groupIdx []int) ([]string, []int64) {
	unique := cl.Refined.UniqueNames
	inGroup := make(map[string]bool, len(groupIdx))
	names := make([]string, 0, len(groupIdx))
	for _, i := range groupIdx {
		if i < 1 || i > len(unique) {
			continue
		}
		inGroup[unique[i-1]] = true
		names = append(names, unique[i-1])
	}

	var docIDs []int64
	for i, name := range cl.MemberNames {
		if inGroup[name] && i < len(cl.MemberDocIDs) {
			docIDs = append(docIDs, cl.MemberDocIDs[i])
		}
	}
	return names, model.DedupeInt64(docIDs)
}

// majorityName picks the group name with the most member occurrences,
// breaking ties by group order.
func majorityName(memberNames, groupNames []string) string {
	counts := make(map[string]int, len(groupNames))
	for _, n := range memberNames {
		counts[n]++
	}
	best := groupNames[0]
	for _, n := range groupNames[1:] {
		if counts[n] > counts[best] {
			best = n
		}
	}
	return best
}

// altNamesFor returns the group names that differ from the canonical one.
func altNamesFor(canonName string, names []string) []string {
	var alt []string
	for _, n := range model.DedupeOrdered(names) {
		if !strings.EqualFold(n, canonName) {
			alt = append(alt, n)
		}
	}
	return alt
}

// mergeAltNames folds this group's names into an existing event's
// alternative names, preserving order and skipping the canonical name.
func mergeAltNames(ev *model.CanonicalEvent, canonName string, names []string) []string {
	merged := append([]string{}, ev.AltNames...)
	seen := make(map[string]bool, len(merged)+len(names)+1)
	seen[strings.ToLower(ev.Name)] = true
	for _, n := range merged {
		seen[strings.ToLower(n)] = true
	}
	for _, n := range append([]string{canonName}, names...) {
		if !seen[strings.ToLower(n)] {
			seen[strings.ToLower(n)] = true
			merged = append(merged, n)
		}
	}
	return merged
}

func dedupedSources(docIDs []int64, sources map[int64]string) []string {
	var names []string
	for _, id := range docIDs {
		if src, ok := sources[id]; ok && src != "" {
			names = append(names, src)
		}
	}
	return model.DedupeOrdered(names)
}

// Phase keywords, most specific stage wins.
var phaseKeywords = []struct {
	phase string
	words []string
}{
	{model.PhaseAftermath, []string{"concluded", "concludes", "ended", "ends", "wrapped", "aftermath", "following"}},
	{model.PhaseExecution, []string{"opens", "opened", "begins", "began", "launches", "launched", "signs", "signed", "inaugurat", "held", "underway"}},
	{model.PhasePreparation, []string{"prepares", "preparing", "ahead of", "upcoming", "set to"}},
	{model.PhaseAnnouncement, []string{"announce", "plans", "pledges", "proposes", "to open", "will "}},
}

// inferPhase tags the group with a story phase from surface cues in its
// names. Empty when no cue matches.
func inferPhase(names []string) string {
	joined := strings.ToLower(strings.Join(names, " | "))
	for _, pk := range phaseKeywords {
		for _, w := range pk.words {
			if strings.Contains(joined, w) {
				return pk.phase
			}
		}
	}
	return ""
}

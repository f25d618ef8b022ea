package canonical

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

var promoteDate = time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

type mockStore struct {
	events      map[int64]*model.CanonicalEvent
	mentions    map[string]*model.DailyEventMention // key: eventID|date
	sources     map[int64]string
	nextID      int64
	refreshed   []int64
	refreshErr  error
	altNameSets int
}

func newMockStore() *mockStore {
	return &mockStore{
		events:   make(map[int64]*model.CanonicalEvent),
		mentions: make(map[string]*model.DailyEventMention),
		sources:  make(map[int64]string),
		nextID:   1,
	}
}

func mentionKey(eventID int64, date time.Time) string {
	return fmt.Sprintf("%d|%s", eventID, date.Format("2006-01-02"))
}

func (m *mockStore) FindMatch(ctx context.Context, country, name string, date time.Time, windowDays int) (*model.CanonicalEvent, error) {
	for _, ev := range m.events {
		if ev.Country != country {
			continue
		}
		lo := ev.FirstMention.AddDate(0, 0, -windowDays)
		hi := ev.LastMention.AddDate(0, 0, windowDays)
		if date.Before(lo) || date.After(hi) {
			continue
		}
		if strings.EqualFold(ev.Name, name) {
			return ev, nil
		}
		for _, alt := range ev.AltNames {
			if strings.EqualFold(alt, name) {
				return ev, nil
			}
		}
	}
	return nil, nil
}

func (m *mockStore) CreateEvent(ctx context.Context, ev *model.CanonicalEvent) (int64, error) {
	ev.ID = m.nextID
	m.nextID++
	m.events[ev.ID] = ev
	return ev.ID, nil
}

func (m *mockStore) SetAltNames(ctx context.Context, eventID int64, altNames []string) error {
	m.altNameSets++
	m.events[eventID].AltNames = altNames
	return nil
}

func (m *mockStore) UpsertDailyMention(ctx context.Context, dm *model.DailyEventMention) error {
	m.mentions[mentionKey(dm.CanonicalEventID, dm.MentionDate)] = dm
	return nil
}

func (m *mockStore) RefreshTotals(ctx context.Context, eventID int64) error {
	if m.refreshErr != nil {
		return m.refreshErr
	}
	m.refreshed = append(m.refreshed, eventID)
	return nil
}

func (m *mockStore) DocumentSources(ctx context.Context, docIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, id := range docIDs {
		if src, ok := m.sources[id]; ok {
			out[id] = src
		}
	}
	return out, nil
}

type mockClusterSource struct {
	reviewed []*model.EventCluster
}

func (m *mockClusterSource) ListMentions(ctx context.Context, country string, date time.Time, targets []string) ([]model.RawMention, error) {
	return nil, nil
}

func (m *mockClusterSource) HasClusters(ctx context.Context, country string, date time.Time) (bool, error) {
	return false, nil
}

func (m *mockClusterSource) InsertClusters(ctx context.Context, clusters []*model.EventCluster) error {
	return nil
}

func (m *mockClusterSource) ListUnreviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error) {
	return nil, nil
}

func (m *mockClusterSource) ListReviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error) {
	return m.reviewed, nil
}

func (m *mockClusterSource) SaveVerdict(ctx context.Context, clusterID int64, verdict *model.RefinedClusters) error {
	return nil
}

type stubEmbedder struct{ fail bool }

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.fail {
		return nil, eris.New("embed: boom")
	}
	return []float64{float64(len(text)), 1, 0}, nil
}

func reviewedCluster(names []string, docIDs []int64, verdict *model.RefinedClusters) *model.EventCluster {
	return &model.EventCluster{
		ID: 1, Country: "China", ClusterDate: promoteDate,
		MemberNames: names, MemberDocIDs: docIDs, Size: len(names),
		Processed: true, LLMDeconflicted: true, Refined: verdict,
	}
}

func TestBuilder_CreatesEventFromConfirmedCluster(t *testing.T) {
	names := []string{"belt and road forum opens", "belt and road forum opens", "belt and road forum begins"}
	cl := reviewedCluster(names, []int64{10, 11, 12},
		model.SingleGroup(model.DedupeOrdered(names), "confirmed"))

	store := newMockStore()
	store.sources = map[int64]string{10: "xinhua", 11: "reuters", 12: "xinhua"}
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{}, Options{MergeWindowDays: 14})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Created)
	assert.Zero(t, sum.Merged)
	assert.Equal(t, 1, sum.Mentions)

	require.Len(t, store.events, 1)
	ev := store.events[1]
	assert.Equal(t, "belt and road forum opens", ev.Name, "majority vote wins")
	assert.Equal(t, []string{"belt and road forum begins"}, ev.AltNames)
	assert.Equal(t, promoteDate, ev.FirstMention)
	assert.Equal(t, promoteDate, ev.LastMention)
	assert.Equal(t, model.PhaseExecution, ev.StoryPhase)
	assert.NotEmpty(t, ev.Embedding)

	dm := store.mentions[mentionKey(1, promoteDate)]
	require.NotNil(t, dm)
	assert.Equal(t, 3, dm.ArticleCount)
	assert.ElementsMatch(t, []int64{10, 11, 12}, dm.DocumentIDs)
	assert.Equal(t, []string{"xinhua", "reuters"}, dm.SourceNames)

	assert.Equal(t, []int64{1}, store.refreshed, "totals recomputed from dailies")
}

func TestBuilder_SplitVerdictCreatesTwoEvents(t *testing.T) {
	// A reviewed split: one cluster, two real-world events.
	names := []string{"loan agreement signed", "dam inaugurated"}
	cl := reviewedCluster(names, []int64{20, 21}, &model.RefinedClusters{
		SameEvent:   false,
		Groups:      [][]int{{1}, {2}},
		Confidence:  0.9,
		UniqueNames: names,
	})

	store := newMockStore()
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{}, Options{MergeWindowDays: 14})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Groups)
	assert.Equal(t, 2, sum.Created)
	require.Len(t, store.events, 2)
	assert.Len(t, store.mentions, 2)

	gotNames := []string{store.events[1].Name, store.events[2].Name}
	assert.ElementsMatch(t, names, gotNames)
	for _, dm := range store.mentions {
		assert.Equal(t, 1, dm.ArticleCount)
	}
}

func TestBuilder_MergesIntoExistingEvent(t *testing.T) {
	store := newMockStore()
	store.events[5] = &model.CanonicalEvent{
		ID: 5, Country: "China", Name: "belt and road forum opens",
		FirstMention: promoteDate.AddDate(0, 0, -3),
		LastMention:  promoteDate.AddDate(0, 0, -3),
	}
	store.nextID = 6

	names := []string{"Belt and Road Forum Opens", "forum opening ceremony"}
	cl := reviewedCluster(names, []int64{30, 31},
		model.SingleGroup(names, "confirmed"))
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{}, Options{MergeWindowDays: 14})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.Zero(t, sum.Created)
	assert.Equal(t, 1, sum.Merged)
	require.Len(t, store.events, 1, "no new event row")

	// The differently-cased canonical match is not re-added; the new
	// variant is.
	assert.Equal(t, []string{"forum opening ceremony"}, store.events[5].AltNames)
	require.NotNil(t, store.mentions[mentionKey(5, promoteDate)])
	assert.Equal(t, []int64{5}, store.refreshed)
}

func TestBuilder_MergeOutsideWindowCreatesNew(t *testing.T) {
	store := newMockStore()
	store.events[5] = &model.CanonicalEvent{
		ID: 5, Country: "China", Name: "belt and road forum opens",
		FirstMention: promoteDate.AddDate(0, 0, -60),
		LastMention:  promoteDate.AddDate(0, 0, -60),
	}
	store.nextID = 6

	cl := reviewedCluster([]string{"belt and road forum opens"}, []int64{40},
		model.SingleGroup([]string{"belt and road forum opens"}, "confirmed"))
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{}, Options{MergeWindowDays: 14})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Created, "same name beyond the merge window is a new event")
	assert.Len(t, store.events, 2)
}

func TestBuilder_RerunReplacesDailyMention(t *testing.T) {
	names := []string{"forum opens"}
	mk := func(docIDs []int64) *model.EventCluster {
		return reviewedCluster(names, docIDs, model.SingleGroup(names, "confirmed"))
	}

	store := newMockStore()
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{mk([]int64{1, 2})}}, &stubEmbedder{}, Options{MergeWindowDays: 14})
	_, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	// Second pass for the same day with one extra document.
	b2 := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{mk([]int64{1, 2, 3})}}, &stubEmbedder{}, Options{MergeWindowDays: 14})
	sum, err := b2.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Merged)
	require.Len(t, store.events, 1)
	require.Len(t, store.mentions, 1)

	dm := store.mentions[mentionKey(1, promoteDate)]
	assert.Equal(t, 3, dm.ArticleCount, "latest pass authoritative, not additive")
	assert.ElementsMatch(t, []int64{1, 2, 3}, dm.DocumentIDs)
}

func TestBuilder_EmbedFailureCountedNotFatal(t *testing.T) {
	cl := reviewedCluster([]string{"forum opens"}, []int64{1},
		model.SingleGroup([]string{"forum opens"}, "confirmed"))
	store := newMockStore()
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{fail: true}, Options{MergeWindowDays: 14})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errors)
	assert.Empty(t, store.events)
}

func TestBuilder_MissingEventIsFatal(t *testing.T) {
	cl := reviewedCluster([]string{"forum opens"}, []int64{1},
		model.SingleGroup([]string{"forum opens"}, "confirmed"))
	store := newMockStore()
	store.refreshErr = eris.Wrap(ErrEventMissing, "canonical: event 1")
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{}, Options{MergeWindowDays: 14})

	_, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEventMissing))
}

func TestBuilder_DryRunWritesNothing(t *testing.T) {
	cl := reviewedCluster([]string{"forum opens"}, []int64{1},
		model.SingleGroup([]string{"forum opens"}, "confirmed"))
	store := newMockStore()
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{cl}}, &stubEmbedder{}, Options{MergeWindowDays: 14, DryRun: true})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.Created, "would-create still counted")
	assert.Equal(t, 1, sum.Mentions, "would-write mention still counted")
	assert.Empty(t, store.events)
	assert.Empty(t, store.mentions)
	assert.Empty(t, store.refreshed)
}

func TestBuilder_DryRunCountsRepeatNameAsMerge(t *testing.T) {
	// Two clusters resolving to the same canonical name: a real run would
	// create once and merge once, so the dry run must report the same.
	first := reviewedCluster([]string{"forum opens"}, []int64{1},
		model.SingleGroup([]string{"forum opens"}, "confirmed"))
	second := reviewedCluster([]string{"forum opens"}, []int64{2},
		model.SingleGroup([]string{"forum opens"}, "confirmed"))
	second.ID = 2

	store := newMockStore()
	b := NewBuilder(store, &mockClusterSource{reviewed: []*model.EventCluster{first, second}}, &stubEmbedder{}, Options{MergeWindowDays: 14, DryRun: true})

	sum, err := b.Run(context.Background(), "China", promoteDate, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 1, sum.Merged)
	assert.Equal(t, 2, sum.Mentions)
	assert.Empty(t, store.events)
	assert.Empty(t, store.mentions)
}

func TestMajorityName(t *testing.T) {
	members := []string{"a", "b", "b", "c"}
	assert.Equal(t, "b", majorityName(members, []string{"a", "b"}))
	assert.Equal(t, "a", majorityName([]string{"a", "b"}, []string{"a", "b"}), "tie keeps group order")
}

func TestInferPhase(t *testing.T) {
	assert.Equal(t, model.PhaseExecution, inferPhase([]string{"forum opens in beijing"}))
	assert.Equal(t, model.PhaseAnnouncement, inferPhase([]string{"china plans new rail line"}))
	assert.Equal(t, model.PhaseAftermath, inferPhase([]string{"summit concluded with accord"}))
	assert.Empty(t, inferPhase([]string{"mystery gathering"}))
}

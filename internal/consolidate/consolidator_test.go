package consolidate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/vectormath"
)

type mockStore struct {
	events    []*model.CanonicalEvent
	missing   int
	links     map[int64]int64 // child -> master
	linkCalls int
}

func newMockStore(events ...*model.CanonicalEvent) *mockStore {
	return &mockStore{events: events, links: make(map[int64]int64)}
}

func (m *mockStore) ListUnconsolidated(ctx context.Context, country string) ([]*model.CanonicalEvent, error) {
	var out []*model.CanonicalEvent
	for _, ev := range m.events {
		if ev.MasterEventID == nil && ev.Embedding != nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockStore) CountMissingEmbedding(ctx context.Context, country string) (int, error) {
	return m.missing, nil
}

func (m *mockStore) LinkMaster(ctx context.Context, masterID int64, childIDs []int64) error {
	m.linkCalls++
	for _, ev := range m.events {
		for _, id := range childIDs {
			if ev.ID == id && ev.MasterEventID == nil {
				master := masterID
				ev.MasterEventID = &master
				m.links[id] = masterID
			}
		}
	}
	return nil
}

func event(id int64, name string, emb []float64, articles, days int) *model.CanonicalEvent {
	return &model.CanonicalEvent{
		ID: id, Country: "China", Name: name,
		Embedding: emb, ArticleCount: articles, MentionDays: days,
	}
}

func TestConsolidator_LinksSimilarEvents(t *testing.T) {
	// Two near-identical forum events and one unrelated deal.
	store := newMockStore(
		event(1, "belt and road forum", []float64{1, 0, 0}, 10, 3),
		event(2, "belt and road forum opens", []float64{0.998, 0.06, 0}, 4, 1),
		event(3, "huawei egypt deal", []float64{0, 1, 0}, 7, 2),
	)
	c := NewConsolidator(store, Options{SimilarityThreshold: 0.85})

	sum, err := c.Run(context.Background(), "China")
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Events)
	assert.Equal(t, 1, sum.Components)
	assert.Equal(t, 1, sum.Linked)

	// Higher article count wins the master election.
	assert.Equal(t, int64(1), store.links[2])
	_, linked := store.links[3]
	assert.False(t, linked, "singleton component left untouched")
}

func TestConsolidator_ZeroThresholdDefaultsNotLinkAll(t *testing.T) {
	// Orthogonal embeddings must never link, even when Options leaves the
	// threshold at its zero value.
	store := newMockStore(
		event(1, "belt and road forum", []float64{1, 0, 0}, 10, 3),
		event(2, "huawei egypt deal", []float64{0, 1, 0}, 7, 2),
	)
	c := NewConsolidator(store, Options{})
	assert.Equal(t, 0.85, c.opts.SimilarityThreshold)

	sum, err := c.Run(context.Background(), "China")
	require.NoError(t, err)
	assert.Zero(t, sum.Linked)
	assert.Empty(t, store.links)
}

func TestConsolidator_MasterElectionTieBreaksOnMentionDays(t *testing.T) {
	store := newMockStore(
		event(1, "forum", []float64{1, 0}, 5, 1),
		event(2, "forum opens", []float64{1, 0}, 5, 4),
	)
	c := NewConsolidator(store, Options{SimilarityThreshold: 0.85})

	_, err := c.Run(context.Background(), "China")
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.links[1], "more mention days wins the tie")
}

func TestConsolidator_RepeatRunLinksNothing(t *testing.T) {
	store := newMockStore(
		event(1, "forum", []float64{1, 0, 0}, 10, 3),
		event(2, "forum opens", []float64{1, 0, 0}, 4, 1),
		event(3, "deal", []float64{0, 1, 0}, 7, 2),
	)
	c := NewConsolidator(store, Options{SimilarityThreshold: 0.85})

	first, err := c.Run(context.Background(), "China")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Linked)

	// Linked events drop out of the input set, so nothing remains to join.
	second, err := c.Run(context.Background(), "China")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Events)
	assert.Zero(t, second.Components)
	assert.Zero(t, second.Linked)
}

func TestConsolidator_FlatHierarchy(t *testing.T) {
	// A transitive chain a~b, b~c must collapse into one component with a
	// single master, never a chain of masters.
	store := newMockStore(
		event(1, "a", vectormath.Unit([]float64{1, 0.1}), 9, 2),
		event(2, "b", vectormath.Unit([]float64{1, 0.3}), 3, 1),
		event(3, "c", vectormath.Unit([]float64{1, 0.5}), 1, 1),
	)
	c := NewConsolidator(store, Options{SimilarityThreshold: 0.97})

	sum, err := c.Run(context.Background(), "China")
	require.NoError(t, err)

	// a~b and b~c clear 0.97; a~c does not, but the component joins all three.
	assert.Equal(t, 1, sum.Components)
	assert.Equal(t, 2, sum.Linked)
	assert.Equal(t, int64(1), store.links[2])
	assert.Equal(t, int64(1), store.links[3])
	for child, master := range store.links {
		assert.NotContains(t, store.links, master, "master %d of %d must not itself be linked", master, child)
	}
}

func TestConsolidator_ChunkedPassMatchesSinglePass(t *testing.T) {
	events := []*model.CanonicalEvent{
		event(1, "a", []float64{1, 0, 0}, 5, 1),
		event(2, "b", []float64{0.99, 0.1, 0}, 4, 1),
		event(3, "c", []float64{0, 1, 0}, 3, 1),
		event(4, "d", []float64{0, 0.99, 0.1}, 2, 1),
		event(5, "e", []float64{0, 0, 1}, 1, 1),
	}

	run := func(chunk int) map[int64]int64 {
		store := newMockStore()
		for _, ev := range events {
			copied := *ev
			copied.MasterEventID = nil
			store.events = append(store.events, &copied)
		}
		c := NewConsolidator(store, Options{SimilarityThreshold: 0.85, ChunkSize: chunk})
		_, err := c.Run(context.Background(), "China")
		require.NoError(t, err)
		return store.links
	}

	assert.Equal(t, run(500), run(2))
	assert.Equal(t, run(500), run(1))
}

func TestConsolidator_DryRunWritesNothing(t *testing.T) {
	store := newMockStore(
		event(1, "forum", []float64{1, 0}, 10, 3),
		event(2, "forum opens", []float64{1, 0}, 4, 1),
	)
	c := NewConsolidator(store, Options{SimilarityThreshold: 0.85, DryRun: true})

	sum, err := c.Run(context.Background(), "China")
	require.NoError(t, err)

	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.Components)
	assert.Equal(t, 1, sum.Linked, "would-link count reported")
	assert.Zero(t, store.linkCalls)
	assert.Empty(t, store.links)
}

func TestConsolidator_MissingEmbeddingCountedNotMerged(t *testing.T) {
	store := newMockStore(event(1, "forum", []float64{1, 0}, 10, 3))
	store.missing = 4
	c := NewConsolidator(store, Options{SimilarityThreshold: 0.85})

	sum, err := c.Run(context.Background(), "China")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.NoEmbedding)
	assert.Equal(t, 1, sum.Events)
	assert.Zero(t, sum.Linked)
}

func TestConnectedComponents(t *testing.T) {
	adj := map[int][]int{
		0: {1}, 1: {0, 2}, 2: {1},
		3: {4}, 4: {3},
	}
	comps := connectedComponents(6, adj)
	require.Len(t, comps, 3)
	assert.ElementsMatch(t, []int{0, 1, 2}, comps[0])
	assert.ElementsMatch(t, []int{3, 4}, comps[1])
	assert.ElementsMatch(t, []int{5}, comps[2])
}

func TestConnectedComponents_LargeChainIterative(t *testing.T) {
	// A path graph deep enough to break recursive DFS.
	const n = 200000
	adj := make(map[int][]int, n)
	for i := 0; i < n-1; i++ {
		adj[i] = append(adj[i], i+1)
		adj[i+1] = append(adj[i+1], i)
	}
	comps := connectedComponents(n, adj)
	require.Len(t, comps, 1)
	assert.Len(t, comps[0], n)
}

package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

type mockStore struct {
	mentions  []model.RawMention
	existing  bool
	inserted  []*model.EventCluster
	insertErr error
	listErr   error
}

func (m *mockStore) ListMentions(ctx context.Context, country string, date time.Time, targets []string) ([]model.RawMention, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.mentions, nil
}

func (m *mockStore) HasClusters(ctx context.Context, country string, date time.Time) (bool, error) {
	return m.existing, nil
}

func (m *mockStore) InsertClusters(ctx context.Context, clusters []*model.EventCluster) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, clusters...)
	return nil
}

func (m *mockStore) ListUnreviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error) {
	return nil, nil
}

func (m *mockStore) ListReviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error) {
	return nil, nil
}

func (m *mockStore) SaveVerdict(ctx context.Context, clusterID int64, verdict *model.RefinedClusters) error {
	return nil
}

// fixedEmbedder returns canned vectors per normalized text.
type fixedEmbedder struct {
	vecs map[string][]float64
	err  error
}

func (f *fixedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := f.vecs[t]
		if !ok {
			v = []float64{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

var testDate = time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

// scenarioEmbedder encodes the Belt-and-Road scenario: the two forum
// mentions are near-identical vectors, the Huawei mention is orthogonal.
func scenarioEmbedder() *fixedEmbedder {
	return &fixedEmbedder{vecs: map[string][]float64{
		"belt and road opens":             {1, 0, 0},
		"belt and road begins in beijing": {0.995, 0.0999, 0},
		"huawei signs deal with egypt":    {0, 1, 0},
	}}
}

func scenarioMentions() []model.RawMention {
	return []model.RawMention{
		{DocumentID: 1, EventName: "Belt and Road Forum opens"},
		{DocumentID: 2, EventName: "Belt and Road Forum begins in Beijing"},
		{DocumentID: 3, EventName: "Huawei signs deal with Egypt"},
	}
}

func TestClusterer_BeltAndRoadDay(t *testing.T) {
	store := &mockStore{mentions: scenarioMentions()}
	c := NewClusterer(store, scenarioEmbedder(), Options{
		Epsilon:  0.15,
		Stoplist: []string{"forum", "summit"},
		Targets:  []string{"Egypt"},
	})

	res, err := c.Run(context.Background(), "China", testDate)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Mentions)
	assert.Equal(t, 2, res.Clusters)
	assert.Equal(t, 1, res.NoiseClusters, "huawei singleton is noise-flagged")
	assert.Equal(t, 2, res.Saved)
	require.Len(t, store.inserted, 2)

	var forum, huawei *model.EventCluster
	for _, cl := range store.inserted {
		if cl.Size == 2 {
			forum = cl
		} else {
			huawei = cl
		}
	}
	require.NotNil(t, forum)
	require.NotNil(t, huawei)

	assert.ElementsMatch(t, []string{"Belt and Road Forum opens", "Belt and Road Forum begins in Beijing"}, forum.MemberNames)
	assert.ElementsMatch(t, []int64{1, 2}, forum.MemberDocIDs)
	assert.False(t, forum.Noise)
	assert.True(t, forum.Processed)
	assert.False(t, forum.LLMDeconflicted)
	assert.Contains(t, forum.MemberNames, forum.Representative)
	assert.Len(t, forum.Centroid, 3)

	assert.True(t, huawei.Noise)
	assert.Equal(t, []int64{3}, huawei.MemberDocIDs)
}

func TestClusterer_EmptyDayIsNoOp(t *testing.T) {
	store := &mockStore{}
	c := NewClusterer(store, scenarioEmbedder(), Options{})

	res, err := c.Run(context.Background(), "China", testDate)
	require.NoError(t, err)
	assert.Zero(t, res.Mentions)
	assert.Zero(t, res.Clusters)
	assert.Empty(t, store.inserted)
}

func TestClusterer_AlreadyClusteredIsCallerError(t *testing.T) {
	store := &mockStore{existing: true, mentions: scenarioMentions()}
	c := NewClusterer(store, scenarioEmbedder(), Options{})

	_, err := c.Run(context.Background(), "China", testDate)
	assert.ErrorContains(t, err, "already clustered")
}

func TestClusterer_EmbedFailureIsFatalNoWrites(t *testing.T) {
	store := &mockStore{mentions: scenarioMentions()}
	c := NewClusterer(store, &fixedEmbedder{err: eris.New("boom")}, Options{})

	_, err := c.Run(context.Background(), "China", testDate)
	assert.Error(t, err)
	assert.Empty(t, store.inserted, "no partial persistence on embed failure")
}

func TestClusterer_DryRunWritesNothing(t *testing.T) {
	store := &mockStore{mentions: scenarioMentions()}
	c := NewClusterer(store, scenarioEmbedder(), Options{Epsilon: 0.15, Stoplist: []string{"forum"}, DryRun: true})

	res, err := c.Run(context.Background(), "China", testDate)
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Clusters, "dry run reports the same counts")
	assert.Zero(t, res.Saved)
	assert.Empty(t, store.inserted)
}

func TestClusterer_DryRunSkipsExistingGuard(t *testing.T) {
	store := &mockStore{existing: true, mentions: scenarioMentions()}
	c := NewClusterer(store, scenarioEmbedder(), Options{DryRun: true})

	_, err := c.Run(context.Background(), "China", testDate)
	assert.NoError(t, err)
}

func TestClusterer_IdempotentCounts(t *testing.T) {
	// Two identical dry runs produce identical results.
	store := &mockStore{mentions: scenarioMentions()}
	c := NewClusterer(store, scenarioEmbedder(), Options{DryRun: true})

	a, err := c.Run(context.Background(), "China", testDate)
	require.NoError(t, err)
	b, err := c.Run(context.Background(), "China", testDate)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

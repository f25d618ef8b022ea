package canonical

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

func TestPostgresStore_FindMatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	date := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "country", "canonical_name", "alternative_names",
		"first_mention_date", "last_mention_date", "total_mention_days",
		"total_article_count", "source_names", "source_count", "story_phase",
		"embedding", "category_counts", "recipient_counts",
		"materiality_score", "materiality_rationale", "master_event_id",
	}).AddRow(
		int64(5), "China", "belt and road forum opens", []string{"brf opening"},
		date.AddDate(0, 0, -2), date.AddDate(0, 0, -1), 2,
		7, []string{"xinhua"}, 1, "execution",
		[]float64{1, 0}, []byte(`{"infrastructure":5}`), []byte(`{"Egypt":3}`),
		nil, "", nil,
	)

	mock.ExpectQuery(`SELECT id, country, canonical_name`).
		WithArgs("China", "brf opening", date, 14).
		WillReturnRows(rows)

	ev, err := store.FindMatch(context.Background(), "China", "brf opening", date, 14)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, int64(5), ev.ID)
	assert.Equal(t, "belt and road forum opens", ev.Name)
	assert.Equal(t, map[string]int{"infrastructure": 5}, ev.CategoryCounts)
	assert.Equal(t, map[string]int{"Egypt": 3}, ev.RecipientCounts)
	assert.Nil(t, ev.MasterEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindMatch_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	date := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, country, canonical_name`).
		WithArgs("China", "nothing here", date, 14).
		WillReturnError(eris.New("no rows in result set"))

	// pgx.ErrNoRows specifically maps to a nil match; other errors surface.
	_, err = store.FindMatch(context.Background(), "China", "nothing here", date, 14)
	require.Error(t, err)
}

func TestPostgresStore_UpsertDailyMention(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	date := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO daily_event_mentions`).
		WithArgs(int64(5), date, 3, "belt and road forum opens",
			[]string{"xinhua"}, "execution", []int64{1, 2, 3}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.UpsertDailyMention(context.Background(), &model.DailyEventMention{
		CanonicalEventID: 5,
		MentionDate:      date,
		ArticleCount:     3,
		Headline:         "belt and road forum opens",
		SourceNames:      []string{"xinhua"},
		MentionContext:   "execution",
		DocumentIDs:      []int64{1, 2, 3},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RefreshTotals_MissingEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec(`UPDATE canonical_events SET`).
		WithArgs(int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.RefreshTotals(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEventMissing))
}

func TestPostgresStore_DocumentSources_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	out, err := store.DocumentSources(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package consolidate

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_ListUnconsolidated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT id, canonical_name, embedding`).
		WithArgs("China").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "canonical_name", "embedding", "total_article_count", "total_mention_days",
		}).
			AddRow(int64(1), "belt and road forum", []float64{1, 0}, 10, 3).
			AddRow(int64(2), "huawei egypt deal", []float64{0, 1}, 7, 2))

	events, err := store.ListUnconsolidated(context.Background(), "China")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "belt and road forum", events[0].Name)
	assert.Equal(t, 10, events[0].ArticleCount)
	assert.Equal(t, "China", events[1].Country)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkMaster(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec(`UPDATE canonical_events`).
		WithArgs(int64(1), []int64{2, 3}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, store.LinkMaster(context.Background(), 1, []int64{2, 3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkMaster_NoChildren(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	require.NoError(t, store.LinkMaster(context.Background(), 1, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

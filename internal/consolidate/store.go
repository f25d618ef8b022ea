package consolidate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// Store defines persistence for the cross-time consolidation pass.
type Store interface {
	// ListUnconsolidated returns a country's canonical events with no
	// master link and a usable identity embedding, ordered by id.
	ListUnconsolidated(ctx context.Context, country string) ([]*model.CanonicalEvent, error)
	// CountMissingEmbedding reports how many otherwise-eligible events were
	// skipped for lack of an embedding.
	CountMissingEmbedding(ctx context.Context, country string) (int, error)
	// LinkMaster points each child at its master. Children that have
	// acquired a master since the read are left alone.
	LinkMaster(ctx context.Context, masterID int64, childIDs []int64) error
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListUnconsolidated(ctx context.Context, country string) ([]*model.CanonicalEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, canonical_name, embedding, total_article_count, total_mention_days
		 FROM canonical_events
		 WHERE country = $1
		   AND master_event_id IS NULL
		   AND embedding IS NOT NULL
		 ORDER BY id`,
		country)
	if err != nil {
		return nil, eris.Wrap(err, "consolidate: list unconsolidated")
	}
	defer rows.Close()

	var events []*model.CanonicalEvent
	for rows.Next() {
		ev := &model.CanonicalEvent{Country: country}
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Embedding, &ev.ArticleCount, &ev.MentionDays); err != nil {
			return nil, eris.Wrap(err, "consolidate: scan event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "consolidate: list unconsolidated")
}

func (s *PostgresStore) CountMissingEmbedding(ctx context.Context, country string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM canonical_events
		 WHERE country = $1 AND master_event_id IS NULL AND embedding IS NULL`,
		country).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "consolidate: count missing embedding")
	}
	return n, nil
}

func (s *PostgresStore) LinkMaster(ctx context.Context, masterID int64, childIDs []int64) error {
	if len(childIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE canonical_events
		 SET master_event_id = $1
		 WHERE id = ANY($2) AND master_event_id IS NULL`,
		masterID, childIDs)
	if err != nil {
		return eris.Wrap(err, "consolidate: link master")
	}
	return nil
}

package rollup

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
)

// EventDigest is one master event's activity inside a period, the raw
// material for a daily narrative.
type EventDigest struct {
	EventName    string
	Headline     string
	ArticleCount int
	MentionDate  time.Time
}

// PeriodSummary is one row of period_summaries.
type PeriodSummary struct {
	Country     string    `json:"country"`
	PeriodType  string    `json:"period_type"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Summary     string    `json:"summary"`
	EventCount  int       `json:"event_count"`
}

// Store defines persistence for period rollups.
type Store interface {
	// ListMasterDigests returns per-day digests for a country's master
	// events (direct or via children) inside [start, end).
	ListMasterDigests(ctx context.Context, country string, start, end time.Time) ([]EventDigest, error)
	// ListChildSummaries returns the child-period summary texts inside
	// [start, end), oldest first.
	ListChildSummaries(ctx context.Context, country, childType string, start, end time.Time) ([]string, error)
	// UpsertSummary writes a period summary, replacing any previous text
	// for the same (country, period type, period start).
	UpsertSummary(ctx context.Context, s *PeriodSummary) error
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListMasterDigests(ctx context.Context, country string, start, end time.Time) ([]EventDigest, error) {
	// A child's mentions roll up to its master via coalesce.
	rows, err := s.pool.Query(ctx,
		`SELECT master.canonical_name, dm.headline, dm.article_count, dm.mention_date
		 FROM daily_event_mentions dm
		 JOIN canonical_events ev ON ev.id = dm.canonical_event_id
		 JOIN canonical_events master ON master.id = coalesce(ev.master_event_id, ev.id)
		 WHERE ev.country = $1
		   AND dm.mention_date >= $2
		   AND dm.mention_date < $3
		 ORDER BY dm.article_count DESC, master.canonical_name`,
		country, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "rollup: list master digests")
	}
	defer rows.Close()

	var digests []EventDigest
	for rows.Next() {
		var d EventDigest
		if err := rows.Scan(&d.EventName, &d.Headline, &d.ArticleCount, &d.MentionDate); err != nil {
			return nil, eris.Wrap(err, "rollup: scan digest")
		}
		digests = append(digests, d)
	}
	return digests, eris.Wrap(rows.Err(), "rollup: list master digests")
}

func (s *PostgresStore) ListChildSummaries(ctx context.Context, country, childType string, start, end time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT summary FROM period_summaries
		 WHERE country = $1 AND period_type = $2
		   AND period_start >= $3 AND period_start < $4
		 ORDER BY period_start`,
		country, childType, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "rollup: list child summaries")
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, eris.Wrap(err, "rollup: scan summary")
		}
		summaries = append(summaries, text)
	}
	return summaries, eris.Wrap(rows.Err(), "rollup: list child summaries")
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, ps *PeriodSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO period_summaries
		   (country, period_type, period_start, period_end, summary, event_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (country, period_type, period_start) DO UPDATE SET
		   period_end = EXCLUDED.period_end,
		   summary = EXCLUDED.summary,
		   event_count = EXCLUDED.event_count,
		   updated_at = now()`,
		ps.Country, ps.PeriodType, ps.PeriodStart, ps.PeriodEnd, ps.Summary, ps.EventCount)
	if err != nil {
		return eris.Wrap(err, "rollup: upsert summary")
	}
	return nil
}

package canonical

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// ErrEventMissing marks a daily mention whose canonical event row is gone,
// the signature of a prior partial write. Fatal to the run.
var ErrEventMissing = eris.New("canonical event referenced but missing")

// Store defines persistence for canonical events and their daily mentions.
type Store interface {
	// FindMatch returns the canonical event for country whose canonical or
	// alternative name matches name (case-insensitive) and whose mention
	// window, extended by windowDays on each side, covers date. Returns
	// (nil, nil) when no event matches.
	FindMatch(ctx context.Context, country, name string, date time.Time, windowDays int) (*model.CanonicalEvent, error)
	// CreateEvent inserts a new canonical event and returns its id.
	CreateEvent(ctx context.Context, ev *model.CanonicalEvent) (int64, error)
	// SetAltNames replaces an event's alternative-name list.
	SetAltNames(ctx context.Context, eventID int64, altNames []string) error
	// UpsertDailyMention writes the daily mention for (event, date). The
	// latest pass is authoritative: an existing row for the same day is
	// replaced, not appended to.
	UpsertDailyMention(ctx context.Context, m *model.DailyEventMention) error
	// RefreshTotals recomputes an event's window, totals, source list and
	// category/recipient counts from its daily mentions. A missing event
	// row is a consistency error.
	RefreshTotals(ctx context.Context, eventID int64) error
	// DocumentSources maps document ids to their source names.
	DocumentSources(ctx context.Context, docIDs []int64) (map[int64]string, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const eventColumns = `id, country, canonical_name, alternative_names,
	first_mention_date, last_mention_date, total_mention_days,
	total_article_count, source_names, source_count, story_phase,
	embedding, category_counts, recipient_counts,
	materiality_score, materiality_rationale, master_event_id`

func (s *PostgresStore) FindMatch(ctx context.Context, country, name string, date time.Time, windowDays int) (*model.CanonicalEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM canonical_events
		 WHERE country = $1
		   AND (lower(canonical_name) = lower($2)
		        OR EXISTS (
		          SELECT 1 FROM unnest(alternative_names) alt
		          WHERE lower(alt) = lower($2)
		        ))
		   AND $3::date BETWEEN first_mention_date - $4::int
		                    AND last_mention_date + $4::int
		 ORDER BY total_article_count DESC, id
		 LIMIT 1`,
		country, name, date, windowDays)

	ev, err := scanEvent(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "canonical: find match")
	}
	return ev, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *model.CanonicalEvent) (int64, error) {
	catJSON, err := json.Marshal(orEmptyCounts(ev.CategoryCounts))
	if err != nil {
		return 0, eris.Wrap(err, "canonical: marshal category counts")
	}
	recJSON, err := json.Marshal(orEmptyCounts(ev.RecipientCounts))
	if err != nil {
		return 0, eris.Wrap(err, "canonical: marshal recipient counts")
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO canonical_events
		   (country, canonical_name, alternative_names,
		    first_mention_date, last_mention_date, total_mention_days,
		    total_article_count, source_names, source_count, story_phase,
		    embedding, category_counts, recipient_counts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		ev.Country, ev.Name, ev.AltNames,
		ev.FirstMention, ev.LastMention, ev.MentionDays,
		ev.ArticleCount, ev.SourceNames, ev.SourceCount, ev.StoryPhase,
		ev.Embedding, catJSON, recJSON).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "canonical: create event")
	}
	return id, nil
}

func (s *PostgresStore) SetAltNames(ctx context.Context, eventID int64, altNames []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_events SET alternative_names = $2 WHERE id = $1`,
		eventID, altNames)
	if err != nil {
		return eris.Wrap(err, "canonical: set alt names")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("canonical: event %d not found", eventID)
	}
	return nil
}

func (s *PostgresStore) UpsertDailyMention(ctx context.Context, m *model.DailyEventMention) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_event_mentions
		   (canonical_event_id, mention_date, article_count, headline,
		    source_names, mention_context, document_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (canonical_event_id, mention_date) DO UPDATE SET
		   article_count = EXCLUDED.article_count,
		   headline = EXCLUDED.headline,
		   source_names = EXCLUDED.source_names,
		   mention_context = EXCLUDED.mention_context,
		   document_ids = EXCLUDED.document_ids`,
		m.CanonicalEventID, m.MentionDate, m.ArticleCount, m.Headline,
		m.SourceNames, m.MentionContext, m.DocumentIDs)
	if err != nil {
		return eris.Wrap(err, "canonical: upsert daily mention")
	}
	return nil
}

func (s *PostgresStore) RefreshTotals(ctx context.Context, eventID int64) error {
	tag, err := s.pool.Exec(ctx,
		`WITH days AS (
		   SELECT mention_date, article_count, source_names, document_ids
		   FROM daily_event_mentions
		   WHERE canonical_event_id = $1
		 ),
		 docs AS (
		   SELECT DISTINCT unnest(document_ids) AS document_id FROM days
		 ),
		 cats AS (
		   SELECT coalesce(jsonb_object_agg(category, n), '{}'::jsonb) AS counts
		   FROM (
		     SELECT dc.category, count(*) AS n
		     FROM docs JOIN document_categories dc USING (document_id)
		     GROUP BY dc.category
		   ) c
		 ),
		 recs AS (
		   SELECT coalesce(jsonb_object_agg(recipient, n), '{}'::jsonb) AS counts
		   FROM (
		     SELECT dr.recipient, count(*) AS n
		     FROM docs JOIN document_recipients dr USING (document_id)
		     GROUP BY dr.recipient
		   ) r
		 ),
		 srcs AS (
		   SELECT coalesce(array_agg(DISTINCT src ORDER BY src), '{}') AS names
		   FROM days, unnest(source_names) src
		 )
		 UPDATE canonical_events SET
		   first_mention_date = (SELECT min(mention_date) FROM days),
		   last_mention_date = (SELECT max(mention_date) FROM days),
		   total_mention_days = (SELECT count(*) FROM days),
		   total_article_count = (SELECT coalesce(sum(article_count), 0) FROM days),
		   source_names = (SELECT names FROM srcs),
		   source_count = (SELECT coalesce(array_length(names, 1), 0) FROM srcs),
		   category_counts = (SELECT counts FROM cats),
		   recipient_counts = (SELECT counts FROM recs)
		 WHERE id = $1`,
		eventID)
	if err != nil {
		return eris.Wrap(err, "canonical: refresh totals")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrEventMissing, "canonical: event %d", eventID)
	}
	return nil
}

func (s *PostgresStore) DocumentSources(ctx context.Context, docIDs []int64) (map[int64]string, error) {
	if len(docIDs) == 0 {
		return map[int64]string{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_name FROM documents WHERE id = ANY($1)`,
		docIDs)
	if err != nil {
		return nil, eris.Wrap(err, "canonical: document sources")
	}
	defer rows.Close()

	out := make(map[int64]string, len(docIDs))
	for rows.Next() {
		var (
			id  int64
			src string
		)
		if err := rows.Scan(&id, &src); err != nil {
			return nil, eris.Wrap(err, "canonical: scan document source")
		}
		out[id] = src
	}
	return out, eris.Wrap(rows.Err(), "canonical: document sources")
}

func scanEvent(row pgx.Row) (*model.CanonicalEvent, error) {
	var (
		ev      model.CanonicalEvent
		catJSON []byte
		recJSON []byte
	)
	err := row.Scan(
		&ev.ID, &ev.Country, &ev.Name, &ev.AltNames,
		&ev.FirstMention, &ev.LastMention, &ev.MentionDays,
		&ev.ArticleCount, &ev.SourceNames, &ev.SourceCount, &ev.StoryPhase,
		&ev.Embedding, &catJSON, &recJSON,
		&ev.MaterialityScore, &ev.MaterialityRationale, &ev.MasterEventID)
	if err != nil {
		return nil, err
	}
	if len(catJSON) > 0 {
		if err := json.Unmarshal(catJSON, &ev.CategoryCounts); err != nil {
			return nil, eris.Wrap(err, "canonical: unmarshal category counts")
		}
	}
	if len(recJSON) > 0 {
		if err := json.Unmarshal(recJSON, &ev.RecipientCounts); err != nil {
			return nil, eris.Wrap(err, "canonical: unmarshal recipient counts")
		}
	}
	return &ev, nil
}

func orEmptyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

package cluster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// Store defines persistence operations for mention fetch and cluster rows.
type Store interface {
	// ListMentions returns raw mentions for one (country, date) passing the
	// domain filter: the document names at least one target recipient and
	// does not name the initiating country as its own recipient.
	ListMentions(ctx context.Context, country string, date time.Time, targets []string) ([]model.RawMention, error)
	// HasClusters reports whether clusters already exist for (country, date).
	HasClusters(ctx context.Context, country string, date time.Time) (bool, error)
	// InsertClusters persists a full day's clusters in one transaction.
	InsertClusters(ctx context.Context, clusters []*model.EventCluster) error
	// ListUnreviewed returns processed clusters awaiting LLM review.
	// batch <= 0 means all batches for the day.
	ListUnreviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error)
	// ListReviewed returns deconflicted clusters ready for promotion.
	ListReviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error)
	// SaveVerdict writes a review verdict onto a cluster row and flips
	// llm_deconflicted. A no-op if the cluster is already reviewed.
	SaveVerdict(ctx context.Context, clusterID int64, verdict *model.RefinedClusters) error
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListMentions(ctx context.Context, country string, date time.Time, targets []string) ([]model.RawMention, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT em.document_id, em.event_name, d.source_name
		 FROM event_mentions em
		 JOIN documents d ON d.id = em.document_id
		 WHERE d.country = $1
		   AND d.published_date = $2
		   AND EXISTS (
		     SELECT 1 FROM document_recipients r
		     WHERE r.document_id = d.id AND r.recipient = ANY($3)
		   )
		   AND NOT EXISTS (
		     SELECT 1 FROM document_recipients r
		     WHERE r.document_id = d.id AND r.recipient = $1
		   )
		 ORDER BY em.document_id, em.event_name`,
		country, date, targets,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: list mentions for %s %s", country, date.Format("2006-01-02"))
	}
	defer rows.Close()

	var out []model.RawMention
	for rows.Next() {
		var m model.RawMention
		if err := rows.Scan(&m.DocumentID, &m.EventName, &m.SourceName); err != nil {
			return nil, eris.Wrap(err, "cluster: scan mention")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: iterate mentions")
	}
	return out, nil
}

func (s *PostgresStore) HasClusters(ctx context.Context, country string, date time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_clusters WHERE country = $1 AND cluster_date = $2)`,
		country, date,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "cluster: check clusters for %s %s", country, date.Format("2006-01-02"))
	}
	return exists, nil
}

func (s *PostgresStore) InsertClusters(ctx context.Context, clusters []*model.EventCluster) error {
	if len(clusters) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "cluster: begin tx")
	}
	defer tx.Rollback(ctx)

	for _, c := range clusters {
		_, err := tx.Exec(ctx,
			`INSERT INTO event_clusters
			   (country, cluster_date, batch_number, cluster_label,
			    member_names, member_doc_ids, size, noise,
			    centroid, representative_name, processed, llm_deconflicted)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			c.Country, c.ClusterDate, c.BatchNumber, c.Label,
			c.MemberNames, c.MemberDocIDs, c.Size, c.Noise,
			c.Centroid, c.Representative, c.Processed, c.LLMDeconflicted,
		)
		if err != nil {
			return eris.Wrapf(err, "cluster: insert cluster %s %s batch %d label %d",
				c.Country, c.ClusterDate.Format("2006-01-02"), c.BatchNumber, c.Label)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "cluster: commit tx")
	}
	return nil
}

const clusterColumns = `id, country, cluster_date, batch_number, cluster_label,
	member_names, member_doc_ids, size, noise,
	centroid, representative_name, processed, llm_deconflicted, refined_clusters`

func (s *PostgresStore) ListUnreviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error) {
	return s.listClusters(ctx, country, date, batch, false)
}

func (s *PostgresStore) ListReviewed(ctx context.Context, country string, date time.Time, batch int) ([]*model.EventCluster, error) {
	return s.listClusters(ctx, country, date, batch, true)
}

func (s *PostgresStore) listClusters(ctx context.Context, country string, date time.Time, batch int, reviewed bool) ([]*model.EventCluster, error) {
	query := `SELECT ` + clusterColumns + `
		 FROM event_clusters
		 WHERE country = $1 AND cluster_date = $2 AND processed AND llm_deconflicted = $3`
	args := []any{country, date, reviewed}
	if batch > 0 {
		query += ` AND batch_number = $4`
		args = append(args, batch)
	}
	query += ` ORDER BY batch_number, cluster_label`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: list clusters for %s %s", country, date.Format("2006-01-02"))
	}
	defer rows.Close()

	var out []*model.EventCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: iterate clusters")
	}
	return out, nil
}

func scanCluster(rows pgx.Rows) (*model.EventCluster, error) {
	var c model.EventCluster
	var refined []byte
	err := rows.Scan(
		&c.ID, &c.Country, &c.ClusterDate, &c.BatchNumber, &c.Label,
		&c.MemberNames, &c.MemberDocIDs, &c.Size, &c.Noise,
		&c.Centroid, &c.Representative, &c.Processed, &c.LLMDeconflicted, &refined,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: scan cluster")
	}
	if len(refined) > 0 {
		var rc model.RefinedClusters
		if err := json.Unmarshal(refined, &rc); err != nil {
			return nil, eris.Wrapf(err, "cluster: unmarshal refined_clusters for cluster %d", c.ID)
		}
		c.Refined = &rc
	}
	return &c, nil
}

func (s *PostgresStore) SaveVerdict(ctx context.Context, clusterID int64, verdict *model.RefinedClusters) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return eris.Wrapf(err, "cluster: marshal verdict for cluster %d", clusterID)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE event_clusters
		 SET refined_clusters = $2, llm_deconflicted = true
		 WHERE id = $1 AND NOT llm_deconflicted`,
		clusterID, payload,
	)
	if err != nil {
		return eris.Wrapf(err, "cluster: save verdict for cluster %d", clusterID)
	}
	return nil
}

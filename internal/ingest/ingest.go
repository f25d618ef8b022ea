// Package ingest imports documents and their extracted event mentions from a
// JSONL export. Import is insert-if-absent on the external document id, so
// re-running a file is safe.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// Record is one line of the JSONL export: a document with its multi-valued
// labels and extracted event names.
type Record struct {
	ExternalID    string   `json:"external_id"`
	Country       string   `json:"country"`
	SourceName    string   `json:"source_name"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	PublishedDate string   `json:"published_date"` // YYYY-MM-DD
	Recipients    []string `json:"recipients"`
	Categories    []string `json:"categories"`
	EventNames    []string `json:"event_names"`
}

// Summary reports one import run.
type Summary struct {
	Lines     int `json:"lines"`
	Documents int `json:"documents"` // newly inserted
	Existing  int `json:"existing"`
	Mentions  int `json:"mentions"`
	Skipped   int `json:"skipped"` // malformed lines
}

// Importer loads JSONL streams into the corpus tables.
type Importer struct {
	pool db.Pool
}

// NewImporter creates an Importer.
func NewImporter(pool db.Pool) *Importer {
	return &Importer{pool: pool}
}

// Run reads JSONL records from r and loads them. Malformed lines are counted
// and skipped, never fatal; database errors abort the run.
func (im *Importer) Run(ctx context.Context, r io.Reader) (*Summary, error) {
	log := zap.L().With(zap.String("stage", "import"))
	sum := &Summary{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		sum.Lines++

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn("malformed record skipped", zap.Int("line", sum.Lines), zap.Error(err))
			sum.Skipped++
			continue
		}
		if err := im.loadRecord(ctx, &rec, sum); err != nil {
			if eris.Is(err, errBadRecord) {
				log.Warn("invalid record skipped", zap.Int("line", sum.Lines), zap.Error(err))
				sum.Skipped++
				continue
			}
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read input")
	}

	log.Info("import complete",
		zap.Int("lines", sum.Lines),
		zap.Int("documents", sum.Documents),
		zap.Int("existing", sum.Existing),
		zap.Int("mentions", sum.Mentions),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

var errBadRecord = eris.New("ingest: invalid record")

func (im *Importer) loadRecord(ctx context.Context, rec *Record, sum *Summary) error {
	if rec.ExternalID == "" || rec.Country == "" {
		return eris.Wrap(errBadRecord, "missing external_id or country")
	}
	published, err := time.Parse("2006-01-02", rec.PublishedDate)
	if err != nil {
		return eris.Wrapf(errBadRecord, "bad published_date %q", rec.PublishedDate)
	}

	var docID int64
	inserted := true
	err = im.pool.QueryRow(ctx,
		`INSERT INTO documents (external_id, country, source_name, title, url, published_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING id`,
		rec.ExternalID, rec.Country, rec.SourceName, rec.Title, rec.URL, published,
	).Scan(&docID)
	if err != nil {
		if !eris.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(err, "ingest: insert document %s", rec.ExternalID)
		}
		// Already present: look up the id, labels may still be new.
		inserted = false
		if err := im.pool.QueryRow(ctx,
			`SELECT id FROM documents WHERE external_id = $1`,
			rec.ExternalID).Scan(&docID); err != nil {
			return eris.Wrapf(err, "ingest: lookup document %s", rec.ExternalID)
		}
	}
	if inserted {
		sum.Documents++
	} else {
		sum.Existing++
	}

	if err := im.insertLabels(ctx, "document_recipients", "recipient", docID, rec.Recipients); err != nil {
		return err
	}
	if err := im.insertLabels(ctx, "document_categories", "category", docID, rec.Categories); err != nil {
		return err
	}

	n, err := im.insertMentions(ctx, docID, inserted, rec.EventNames)
	if err != nil {
		return err
	}
	sum.Mentions += n
	return nil
}

// insertMentions writes a document's event mentions. A fresh document has no
// prior mentions, so its rows go through the COPY protocol in one shot; for a
// document seen before, each row is an insert-if-absent.
func (im *Importer) insertMentions(ctx context.Context, docID int64, fresh bool, eventNames []string) (int, error) {
	names := make([]string, 0, len(eventNames))
	for _, name := range model.DedupeOrdered(eventNames) {
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return 0, nil
	}

	if fresh {
		rows := make([][]any, len(names))
		for i, name := range names {
			rows[i] = []any{docID, name}
		}
		n, err := db.CopyFrom(ctx, im.pool, "event_mentions",
			[]string{"document_id", "event_name"}, rows)
		if err != nil {
			return 0, eris.Wrapf(err, "ingest: copy mentions for document %d", docID)
		}
		return int(n), nil
	}

	inserted := 0
	for _, name := range names {
		tag, err := im.pool.Exec(ctx,
			`INSERT INTO event_mentions (document_id, event_name)
			 VALUES ($1, $2)
			 ON CONFLICT (document_id, event_name) DO NOTHING`,
			docID, name)
		if err != nil {
			return 0, eris.Wrapf(err, "ingest: insert mention for document %d", docID)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// insertLabels bulk-upserts one flattened multi-valued field.
func (im *Importer) insertLabels(ctx context.Context, table, column string, docID int64, values []string) error {
	values = model.DedupeOrdered(values)
	if len(values) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		rows = append(rows, []any{docID, v})
	}
	_, err := db.BulkUpsert(ctx, im.pool, db.UpsertConfig{
		Table:        table,
		Columns:      []string{"document_id", column},
		ConflictKeys: []string{"document_id", column},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "ingest: upsert %s", table)
	}
	return nil
}

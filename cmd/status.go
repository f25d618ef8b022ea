package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
)

var (
	statusCountry string
	statusOutput  string
)

// statusReport summarizes one country's corpus and pipeline backlog.
type statusReport struct {
	Country            string `json:"country" yaml:"country"`
	Documents          int64  `json:"documents" yaml:"documents"`
	Mentions           int64  `json:"mentions" yaml:"mentions"`
	Clusters           int64  `json:"clusters" yaml:"clusters"`
	PendingReview      int64  `json:"pending_review" yaml:"pending_review"`
	CanonicalEvents    int64  `json:"canonical_events" yaml:"canonical_events"`
	MasterEvents       int64  `json:"master_events" yaml:"master_events"`
	LinkedEvents       int64  `json:"linked_events" yaml:"linked_events"`
	ConsolidateBacklog int64  `json:"consolidate_backlog" yaml:"consolidate_backlog"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus and pipeline counts for a country",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := buildStatusReport(ctx, pool, statusCountry)
		if err != nil {
			return err
		}

		return writeStatusReport(os.Stdout, report, statusOutput)
	},
}

func buildStatusReport(ctx context.Context, pool db.Pool, country string) (*statusReport, error) {
	r := &statusReport{Country: country}

	queries := []struct {
		dest *int64
		sql  string
	}{
		{&r.Documents, `SELECT count(*) FROM documents WHERE country = $1`},
		{&r.Mentions, `SELECT count(*) FROM event_mentions em
			JOIN documents d ON d.id = em.document_id WHERE d.country = $1`},
		{&r.Clusters, `SELECT count(*) FROM event_clusters WHERE country = $1`},
		{&r.PendingReview, `SELECT count(*) FROM event_clusters
			WHERE country = $1 AND processed AND NOT llm_deconflicted`},
		{&r.CanonicalEvents, `SELECT count(*) FROM canonical_events WHERE country = $1`},
		{&r.MasterEvents, `SELECT count(*) FROM canonical_events
			WHERE country = $1 AND master_event_id IS NULL
			  AND id IN (SELECT master_event_id FROM canonical_events WHERE master_event_id IS NOT NULL)`},
		{&r.LinkedEvents, `SELECT count(*) FROM canonical_events
			WHERE country = $1 AND master_event_id IS NOT NULL`},
		{&r.ConsolidateBacklog, `SELECT count(*) FROM canonical_events
			WHERE country = $1 AND master_event_id IS NULL AND embedding IS NOT NULL`},
	}

	for _, q := range queries {
		if err := pool.QueryRow(ctx, q.sql, country).Scan(q.dest); err != nil {
			return nil, eris.Wrap(err, "status: count query")
		}
	}
	return r, nil
}

func writeStatusReport(out io.Writer, r *statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		return yaml.NewEncoder(out).Encode(r)
	case "text":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "country\t%s\n", r.Country)
		fmt.Fprintf(w, "documents\t%d\n", r.Documents)
		fmt.Fprintf(w, "event mentions\t%d\n", r.Mentions)
		fmt.Fprintf(w, "clusters\t%d\n", r.Clusters)
		fmt.Fprintf(w, "pending review\t%d\n", r.PendingReview)
		fmt.Fprintf(w, "canonical events\t%d\n", r.CanonicalEvents)
		fmt.Fprintf(w, "master events\t%d\n", r.MasterEvents)
		fmt.Fprintf(w, "linked events\t%d\n", r.LinkedEvents)
		fmt.Fprintf(w, "consolidation backlog\t%d\n", r.ConsolidateBacklog)
		return w.Flush()
	default:
		return eris.Errorf("unknown output format %q (want text, json, or yaml)", format)
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusCountry, "country", "", "initiating country (required)")
	statusCmd.Flags().StringVar(&statusOutput, "output", "text", "output format: text, json, yaml")
	_ = statusCmd.MarkFlagRequired("country")
	rootCmd.AddCommand(statusCmd)
}

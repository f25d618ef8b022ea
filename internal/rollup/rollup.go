// Package rollup builds the daily→weekly→monthly→yearly narrative summaries
// consumed by reporting. Daily summaries are synthesized by the LLM from
// master-event headlines; each higher period aggregates its child periods.
package rollup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/pkg/anthropic"
)

// Period types, each aggregating the one before it.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

var childPeriod = map[string]string{
	PeriodWeekly:  PeriodDaily,
	PeriodMonthly: PeriodWeekly,
	PeriodYearly:  PeriodMonthly,
}

const systemPrompt = `You are an analyst writing concise narrative summaries of one country's international soft-power activity. Write two to four paragraphs of plain prose covering the most significant events, weighted by coverage volume. No preamble, no bullet points.`

// Options configures a Roller.
type Options struct {
	Model     string
	MaxTokens int64
	DryRun    bool
}

// Roller produces period summaries.
type Roller struct {
	store  Store
	client anthropic.Client
	opts   Options
}

// NewRoller creates a Roller.
func NewRoller(store Store, client anthropic.Client, opts Options) *Roller {
	return &Roller{store: store, client: client, opts: opts}
}

// Summary reports one rollup run.
type Summary struct {
	PeriodType  string    `json:"period_type"`
	PeriodStart time.Time `json:"period_start"`
	Sources     int       `json:"sources"` // digests or child summaries consumed
	Saved       bool      `json:"saved"`
	DryRun      bool      `json:"dry_run,omitempty"`
}

// Run builds the summary for the period containing date. An empty period is
// a no-op with zero counts.
func (r *Roller) Run(ctx context.Context, country, periodType string, date time.Time) (*Summary, error) {
	start, end, err := PeriodBounds(periodType, date)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("stage", "rollup"),
		zap.String("country", country),
		zap.String("period", periodType),
		zap.String("start", start.Format("2006-01-02")),
	)

	sum := &Summary{PeriodType: periodType, PeriodStart: start, DryRun: r.opts.DryRun}

	var material string
	var eventCount int
	if periodType == PeriodDaily {
		digests, err := r.store.ListMasterDigests(ctx, country, start, end)
		if err != nil {
			return nil, err
		}
		if len(digests) == 0 {
			log.Info("no activity in period")
			return sum, nil
		}
		sum.Sources = len(digests)
		eventCount = countEvents(digests)
		material = digestMaterial(digests)
	} else {
		children, err := r.store.ListChildSummaries(ctx, country, childPeriod[periodType], start, end)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			log.Info("no child summaries in period")
			return sum, nil
		}
		sum.Sources = len(children)
		eventCount = len(children)
		material = strings.Join(children, "\n\n---\n\n")
	}

	text, err := r.synthesize(ctx, country, periodType, start, end, material)
	if err != nil {
		return nil, err
	}

	if r.opts.DryRun {
		log.Info("dry run, summary not written", zap.Int("sources", sum.Sources))
		return sum, nil
	}

	if err := r.store.UpsertSummary(ctx, &PeriodSummary{
		Country:     country,
		PeriodType:  periodType,
		PeriodStart: start,
		PeriodEnd:   end.AddDate(0, 0, -1),
		Summary:     text,
		EventCount:  eventCount,
	}); err != nil {
		return nil, err
	}
	sum.Saved = true

	log.Info("rollup complete", zap.Int("sources", sum.Sources))
	return sum, nil
}

func (r *Roller) synthesize(ctx context.Context, country, periodType string, start, end time.Time, material string) (string, error) {
	prompt := fmt.Sprintf(
		"Country: %s\nPeriod: %s, %s to %s\n\nSource material:\n%s",
		country, periodType,
		start.Format("2006-01-02"), end.AddDate(0, 0, -1).Format("2006-01-02"),
		material)

	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.opts.Model,
		MaxTokens: r.opts.MaxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "rollup: synthesize summary")
	}
	resp.Usage.LogCost(r.opts.Model, "rollup")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("rollup: empty summary from model")
	}
	return text, nil
}

// PeriodBounds returns the half-open [start, end) range of the period
// containing date. Weeks start on Monday.
func PeriodBounds(periodType string, date time.Time) (time.Time, time.Time, error) {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch periodType {
	case PeriodDaily:
		return d, d.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		offset := (int(d.Weekday()) + 6) % 7
		start := d.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonthly:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case PeriodYearly:
		start := time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, eris.Errorf("rollup: unknown period type %q", periodType)
	}
}

func digestMaterial(digests []EventDigest) string {
	var sb strings.Builder
	for _, d := range digests {
		fmt.Fprintf(&sb, "- %s (%d articles, %s): %s\n",
			d.EventName, d.ArticleCount, d.MentionDate.Format("2006-01-02"), d.Headline)
	}
	return sb.String()
}

func countEvents(digests []EventDigest) int {
	seen := make(map[string]bool, len(digests))
	for _, d := range digests {
		seen[d.EventName] = true
	}
	return len(seen)
}

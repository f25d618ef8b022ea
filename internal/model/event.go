package model

import "time"

// Story phases describe where in its arc an event sits, as judged from the
// day's coverage.
const (
	PhaseAnnouncement = "announcement"
	PhasePreparation  = "preparation"
	PhaseExecution    = "execution"
	PhaseAftermath    = "aftermath"
)

// CanonicalEvent is the durable identity of one real-world event for one
// initiating country. Created by the canonical event builder, grown in place
// on repeated sightings, re-linked by the cross-time consolidator, never
// deleted.
type CanonicalEvent struct {
	ID                   int64          `json:"id"`
	Country              string         `json:"country"`
	Name                 string         `json:"canonical_name"`
	AltNames             []string       `json:"alternative_names,omitempty"`
	FirstMention         time.Time      `json:"first_mention_date"`
	LastMention          time.Time      `json:"last_mention_date"`
	MentionDays          int            `json:"total_mention_days"`
	ArticleCount         int            `json:"total_article_count"`
	SourceNames          []string       `json:"source_names,omitempty"`
	SourceCount          int            `json:"source_count"`
	StoryPhase           string         `json:"story_phase,omitempty"`
	Embedding            []float64      `json:"-"`
	CategoryCounts       map[string]int `json:"category_counts,omitempty"`
	RecipientCounts      map[string]int `json:"recipient_counts,omitempty"`
	MaterialityScore     *float64       `json:"materiality_score,omitempty"`
	MaterialityRationale string         `json:"materiality_rationale,omitempty"`
	MasterEventID        *int64         `json:"master_event_id,omitempty"`
}

// IsMaster reports whether the event is itself a consolidation root (or has
// simply never been consolidated).
func (e *CanonicalEvent) IsMaster() bool {
	return e.MasterEventID == nil
}

// DailyEventMention joins one canonical event to one calendar date. Unique
// per (canonical event, date); the latest clustering pass for a day is
// authoritative for its article count and document ids.
type DailyEventMention struct {
	ID               int64     `json:"id"`
	CanonicalEventID int64     `json:"canonical_event_id"`
	MentionDate      time.Time `json:"mention_date"`
	ArticleCount     int       `json:"article_count"`
	Headline         string    `json:"headline,omitempty"`
	SourceNames      []string  `json:"source_names,omitempty"`
	MentionContext   string    `json:"mention_context,omitempty"`
	DocumentIDs      []int64   `json:"document_ids"`
}

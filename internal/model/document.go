// Package model defines the core domain types shared across the pipeline:
// documents, raw event mentions, same-day clusters, canonical events, and
// their daily mention records.
package model

import "time"

// Document is one ingested news article about a country's international
// activity. Multi-valued fields (recipients, categories, sources) are
// flattened into relationship tables at import time.
type Document struct {
	ID            int64     `json:"id"`
	Country       string    `json:"country"` // initiating country
	Title         string    `json:"title"`
	SourceName    string    `json:"source_name"`
	PublishedDate time.Time `json:"published_date"`
	Recipients    []string  `json:"recipients,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	EventNames    []string  `json:"event_names,omitempty"`
}

// RawMention is an unprocessed (document, event-name-text) pair. Mentions are
// only ever inserted, with (document_id, event_name) uniqueness; they are
// never mutated.
type RawMention struct {
	DocumentID int64  `json:"document_id"`
	EventName  string `json:"event_name"`
	SourceName string `json:"source_name,omitempty"`
}

// DedupeOrdered returns the input strings with duplicates removed,
// preserving first-seen order.
func DedupeOrdered(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// DedupeInt64 returns the input ids with duplicates removed, preserving
// first-seen order.
func DedupeInt64(in []int64) []int64 {
	seen := make(map[int64]bool, len(in))
	out := make([]int64, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

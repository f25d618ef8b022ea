package model

import "time"

// NoiseLabel is the cluster label reserved for points the density pass could
// not attach to any neighborhood. With min_samples=1 every point lands in a
// real cluster, so noise is tracked via the Noise flag on singleton clusters.
const NoiseLabel = -1

// EventCluster is a same-day, same-country grouping of raw mentions produced
// by density clustering. Identified by (country, date, batch, label).
// MemberNames and MemberDocIDs are parallel arrays of equal length.
type EventCluster struct {
	ID              int64            `json:"id"`
	Country         string           `json:"country"`
	ClusterDate     time.Time        `json:"cluster_date"`
	BatchNumber     int              `json:"batch_number"`
	Label           int              `json:"label"`
	MemberNames     []string         `json:"member_names"`
	MemberDocIDs    []int64          `json:"member_doc_ids"`
	Size            int              `json:"size"`
	Noise           bool             `json:"noise"`
	Centroid        []float64        `json:"centroid,omitempty"`
	Representative  string           `json:"representative"`
	Processed       bool             `json:"processed"`
	LLMDeconflicted bool             `json:"llm_deconflicted"`
	Refined         *RefinedClusters `json:"refined_clusters,omitempty"`
}

// UniqueNames returns the cluster's member names with duplicates removed,
// preserving first-seen order. Group indices in a verdict are 1-based
// positions into this slice.
func (c *EventCluster) UniqueNames() []string {
	return DedupeOrdered(c.MemberNames)
}

// RefinedClusters is the persisted verdict of a deconfliction review: the
// sub-grouping of the cluster's unique names into 1..K groups.
type RefinedClusters struct {
	SameEvent   bool     `json:"same_event"`
	Groups      [][]int  `json:"groups"` // 1-based indices into UniqueNames
	Rationale   string   `json:"rationale"`
	Confidence  float64  `json:"confidence"`
	UniqueNames []string `json:"unique_names"`
}

// SingleGroup returns a trivial one-group verdict covering all the given
// names. Used for noise clusters, single-name clusters, and judge-failure
// fallbacks.
func SingleGroup(uniqueNames []string, rationale string) *RefinedClusters {
	idx := make([]int, len(uniqueNames))
	for i := range uniqueNames {
		idx[i] = i + 1
	}
	return &RefinedClusters{
		SameEvent:   true,
		Groups:      [][]int{idx},
		Rationale:   rationale,
		Confidence:  1.0,
		UniqueNames: uniqueNames,
	}
}

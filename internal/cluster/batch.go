package cluster

import (
	"sort"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// assignBatches partitions clusters into LLM-review batches bounded by total
// member count, not cluster count, so later judge prompts stay bounded.
// Largest clusters are placed greedily first (first-fit decreasing); a
// cluster bigger than the cap gets a batch of its own. Batch numbers are
// 1-based. Returns the number of batches used.
func assignBatches(clusters []*model.EventCluster, maxMembers int) int {
	if len(clusters) == 0 {
		return 0
	}
	if maxMembers <= 0 {
		maxMembers = 40
	}

	order := make([]*model.EventCluster, len(clusters))
	copy(order, clusters)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Size > order[j].Size
	})

	var loads []int
	for _, c := range order {
		placed := false
		for b, load := range loads {
			if load+c.Size <= maxMembers {
				c.BatchNumber = b + 1
				loads[b] += c.Size
				placed = true
				break
			}
		}
		if !placed {
			loads = append(loads, c.Size)
			c.BatchNumber = len(loads)
		}
	}

	return len(loads)
}

package cluster

import (
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/vectormath"
)

const unclassified = -2

// dbscan runs density-based clustering over the given vectors using cosine
// distance. Labels are 0..k-1; points no neighborhood absorbs are labeled
// model.NoiseLabel. With minSamples=1 every point is a core point, so every
// point receives a real label and singletons form their own clusters.
func dbscan(vecs [][]float64, eps float64, minSamples int) []int {
	n := len(vecs)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unclassified
	}

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unclassified {
			continue
		}

		neighbors := regionQuery(vecs, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = model.NoiseLabel
			continue
		}

		labels[i] = next
		expand(vecs, labels, neighbors, next, eps, minSamples)
		next++
	}

	return labels
}

// expand grows cluster label from the seed neighborhood, breadth-first with
// an explicit queue.
func expand(vecs [][]float64, labels, seeds []int, label int, eps float64, minSamples int) {
	queue := append([]int(nil), seeds...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if labels[p] == model.NoiseLabel {
			// Border point reachable from a core point.
			labels[p] = label
			continue
		}
		if labels[p] != unclassified {
			continue
		}

		labels[p] = label
		neighbors := regionQuery(vecs, p, eps)
		if len(neighbors) >= minSamples {
			queue = append(queue, neighbors...)
		}
	}
}

// regionQuery returns the indices (including i itself) within eps cosine
// distance of point i.
func regionQuery(vecs [][]float64, i int, eps float64) []int {
	var out []int
	for j := range vecs {
		if vectormath.CosineDistance(vecs[i], vecs[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

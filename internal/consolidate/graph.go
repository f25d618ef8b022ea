package consolidate

// connectedComponents extracts the connected components of an undirected
// graph over nodes 0..n-1 given adjacency lists. Traversal is an explicit
// stack, not recursion, so a component spanning most of a large country's
// event set cannot blow the goroutine stack. Components come back in
// first-node order.
func connectedComponents(n int, adj map[int][]int) [][]int {
	visited := make([]bool, n)
	var components [][]int

	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		var comp []int
		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, node)
			for _, next := range adj[node] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		components = append(components, comp)
	}
	return components
}

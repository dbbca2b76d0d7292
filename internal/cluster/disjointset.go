package cluster

// DisjointSet is a union-find over integer indices with path compression
// and union by rank.
type DisjointSet struct {
	parent []int
	rank   []int
}

// NewDisjointSet builds n singleton sets.
func NewDisjointSet(n int) *DisjointSet {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &DisjointSet{parent: parent, rank: rank}
}

// Find returns the root of x's set, compressing the path on the way.
func (d *DisjointSet) Find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

// Union merges the sets containing a and b.
func (d *DisjointSet) Union(a, b int) {
	rootA, rootB := d.Find(a), d.Find(b)
	if rootA == rootB {
		return
	}

	if d.rank[rootA] < d.rank[rootB] {
		rootA, rootB = rootB, rootA
	}
	d.parent[rootB] = rootA
	if d.rank[rootA] == d.rank[rootB] {
		d.rank[rootA]++
	}
}

// Connected reports whether a and b share a set.
func (d *DisjointSet) Connected(a, b int) bool {
	return d.Find(a) == d.Find(b)
}

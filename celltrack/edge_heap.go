package celltrack

// rankedEdge is an overlap edge annotated with the keys the resolver ranks it by
type rankedEdge struct {
	edge OverlapEdge
	// score is the primary key (overlap pixels or destination area, depending on Ranking)
	score int
	// age orders tracks on ties: smaller wins
	age int64
}

// Copied from container/heap - https://golang.org/pkg/container/heap/
// Why make copy? Just want to avoid type conversion

// edgeHeap pops the best ranked edge first
type edgeHeap []*rankedEdge

func (h edgeHeap) Len() int { return len(h) }

// Less orders by score desc, overlap desc, age asc, destination label asc.
// Every key is an integer, so the order is fully deterministic.
func (h edgeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.score != b.score {
		return a.score > b.score
	}
	if a.edge.Pixels != b.edge.Pixels {
		return a.edge.Pixels > b.edge.Pixels
	}
	if a.age != b.age {
		return a.age < b.age
	}
	if a.edge.To != b.edge.To {
		return a.edge.To < b.edge.To
	}
	return a.edge.From < b.edge.From
}

func (h edgeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *edgeHeap) Push(x *rankedEdge) {
	*h = append(*h, x)
	h.up(h.Len() - 1)
}

// Pop removes and returns the minimum element (according to Less) from the heap.
// The complexity is O(log n) where n = h.Len().
func (h *edgeHeap) Pop() *rankedEdge {
	n := h.Len() - 1
	h.Swap(0, n)
	h.down(0, n)
	heapSize := len(*h)
	lastNode := (*h)[heapSize-1]
	(*h)[heapSize-1] = nil
	*h = (*h)[0 : heapSize-1]
	return lastNode
}

func (h edgeHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h edgeHeap) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}

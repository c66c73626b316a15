package primer

import (
	"container/heap"
	"fmt"
	"sort"
)

// A Shard is a subset of the corpus assigned to one execution batch.
type Shard struct {
	Projects []Project // The shard's projects, in order of assignment
	Cost     int       // The accumulated cost of all of the shard's projects
}

// Partition splits the passed projects into n shards of near-balanced cost.
// Every project ends up in exactly one shard. Shards may be empty if n exceeds the amount of projects.
//
// Projects are assigned longest-processing-time-first: sorted by cost, then location, both descending,
// each project is appended to the shard with the lowest accumulated cost, where the lower index wins ties.
// The maximum shard cost is within a factor of 4/3 - 1/(3n) of the optimum.
//
// Partition panics if n < 1.
func Partition(projects []Project, n int) []Shard {
	if n < 1 {
		panic(fmt.Sprintf("cannot partition projects into %d shards", n))
	}

	sorted := make([]Project, len(projects))
	copy(sorted, projects)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Cost != sorted[j].Cost {
			return sorted[i].Cost > sorted[j].Cost
		}
		return sorted[i].Location > sorted[j].Location
	})

	shards := make([]Shard, n)
	loads := make(shardHeap, n)
	for i := range n {
		loads[i] = shardLoad{index: i}
	}
	heap.Init(&loads)

	for _, p := range sorted {
		lightest := &loads[0]
		shards[lightest.index].Projects = append(shards[lightest.index].Projects, p)
		shards[lightest.index].Cost += p.Cost
		lightest.cost += p.Cost
		heap.Fix(&loads, 0)
	}

	return shards
}

type shardLoad struct {
	index int
	cost  int
}

// shardHeap is a min-heap of shard loads, ordered by cost and then index
type shardHeap []shardLoad

func (h shardHeap) Len() int { return len(h) }
func (h shardHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].index < h[j].index
}
func (h shardHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *shardHeap) Push(x any)   { *h = append(*h, x.(shardLoad)) }
func (h *shardHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}

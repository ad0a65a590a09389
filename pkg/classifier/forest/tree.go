package forest

import (
	"fmt"
	"math/rand"
	"sort"
)

// node of a decision tree.
//
// Nodes are stored in a flat slice, and the root is the first one.
type node struct {
	// index of the feature to split with. -1 for leaves.
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`

	// fraction of positive samples reached to this node.
	Proba float64 `json:"p"`
}

func (n node) leaf() bool {
	return n.Feature < 0
}

type tree []node

func (t tree) proba(x []float64) float64 {
	i := 0
	for {
		n := t[i]
		if n.leaf() {
			return n.Proba
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// growth grows a CART tree with gini impurity.
type growth struct {
	X               [][]float64
	Y               []int
	maxDepth        int
	minSamplesSplit int
	maxFeatures     int
	rng             *rand.Rand

	nodes tree
}

func positives(y []int, samples []int) int {
	p := 0
	for _, s := range samples {
		p += y[s]
	}
	return p
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// grow a subtree from samples, and returns index of its root.
func (g *growth) grow(samples []int, depth int) int {
	n := len(samples)
	pos := positives(g.Y, samples)
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{Feature: -1, Proba: float64(pos) / float64(n)})

	if pos == 0 || pos == n {
		return idx
	}
	if n < g.minSamplesSplit {
		return idx
	}
	if 0 < g.maxDepth && g.maxDepth <= depth {
		return idx
	}

	feature, threshold, ok := g.split(samples, pos)
	if !ok {
		return idx
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, s := range samples {
		if g.X[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[idx].Feature = feature
	g.nodes[idx].Threshold = threshold
	g.nodes[idx].Left = l
	g.nodes[idx].Right = r
	return idx
}

// split finds the best split among randomly chosen features.
//
// When no chosen feature can split samples, the rest of features are tried.
func (g *growth) split(samples []int, pos int) (int, float64, bool) {
	n := len(samples)
	parent := gini(pos, n)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0

	sorted := make([]int, n)
	for tried, f := range g.rng.Perm(len(g.X[0])) {
		if g.maxFeatures <= tried && 0 <= bestFeature {
			break
		}

		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return g.X[sorted[i]][f] < g.X[sorted[j]][f]
		})

		leftPos := 0
		for i := 0; i < n-1; i++ {
			leftPos += g.Y[sorted[i]]
			lo, hi := g.X[sorted[i]][f], g.X[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := i+1, n-i-1
			impurity := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(pos-leftPos, nr)) / float64(n)
			if gain := parent - impurity; bestGain < gain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if hi <= bestThreshold {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, 0 <= bestFeature
}

// check structure of the tree, to be walked safely.
func (t tree) check(features int) error {
	if len(t) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range t {
		if n.leaf() {
			continue
		}
		if features <= n.Feature {
			return fmt.Errorf("node %d: feature %d is out of range", i, n.Feature)
		}
		// children come after their parent, so walking always ends.
		if n.Left <= i || n.Right <= i || len(t) <= n.Left || len(t) <= n.Right {
			return fmt.Errorf("node %d: bad children", i)
		}
	}
	return nil
}

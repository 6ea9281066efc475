package ensemble

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
)

// Criterion names accepted by the forest.
const (
	CriterionSquaredError = "squared_error"
	CriterionFriedmanMSE  = "friedman_mse"
)

// Node is a single node of a regression tree.
// Leaves have Left == Right == -1 and carry the mean target of their samples.
type Node struct {
	Feature   int     // Feature index used for splitting (-1 for leaves)
	Threshold float64 // Samples with x <= Threshold go left; NaN always goes right
	Left      int     // Left child index (-1 if leaf)
	Right     int     // Right child index (-1 if leaf)
	Value     float64 // Mean target of the samples that reached this node
	NSamples  int     // Number of (bootstrap) samples that reached this node
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left == -1 && n.Right == -1
}

// Tree is a fitted CART regression tree stored as a flat node array, root first.
type Tree struct {
	Nodes []Node
}

// Predict makes a prediction for a single sample using this tree
func (t *Tree) Predict(features []float64) float64 {
	i := 0
	for {
		node := &t.Nodes[i]
		if node.IsLeaf() {
			return node.Value
		}
		v := features[node.Feature]
		if !math.IsNaN(v) && v <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// NLeaves returns the number of leaf nodes.
func (t *Tree) NLeaves() int {
	c := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			c++
		}
	}
	return c
}

// treeParams holds the growth limits shared by every tree of a forest.
type treeParams struct {
	criterion       string
	maxDepth        int // 0 = unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // number of features examined per split
}

type sortedSample struct {
	idx int
	x   float64
}

// NaN sorts last so that a single scan finds splits that send missing values right.
func compareSamples(a, b sortedSample) int {
	aNaN, bNaN := math.IsNaN(a.x), math.IsNaN(b.x)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	default:
		return cmp.Compare(a.x, b.x)
	}
}

// treeBuilder grows one tree. cols and y are shared read-only across builders.
type treeBuilder struct {
	cols   [][]float64 // column-major features
	y      []float64
	params treeParams
	rng    *rand.Rand

	nodes    []Node
	features []int
	buf      []sortedSample
}

func newTreeBuilder(cols [][]float64, y []float64, params treeParams, rng *rand.Rand) *treeBuilder {
	features := make([]int, len(cols))
	for i := range features {
		features[i] = i
	}
	return &treeBuilder{
		cols:     cols,
		y:        y,
		params:   params,
		rng:      rng,
		features: features,
	}
}

// fit grows a tree over the given sample indices. idx may contain duplicates
// (bootstrap draws) and is reordered in place.
func (b *treeBuilder) fit(idx []int) Tree {
	b.nodes = b.nodes[:0]
	b.buf = make([]sortedSample, len(idx))
	b.build(idx, 0)
	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	return Tree{Nodes: nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	n := len(idx)
	sum := 0.0
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		v := b.y[i]
		sum += v
		yMin = min(yMin, v)
		yMax = max(yMax, v)
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    sum / float64(n),
		NSamples: n,
	})

	p := b.params
	if (p.maxDepth > 0 && depth >= p.maxDepth) ||
		n < p.minSamplesSplit ||
		n < 2*p.minSamplesLeaf ||
		yMin == yMax {
		return id
	}

	feature, threshold, ok := b.findSplit(idx, sum)
	if !ok {
		return id
	}

	// partition: left side holds non-NaN values <= threshold
	col := b.cols[feature]
	k := 0
	for i := range idx {
		v := col[idx[i]]
		if !math.IsNaN(v) && v <= threshold {
			idx[i], idx[k] = idx[k], idx[i]
			k++
		}
	}

	// 片側が空になる分割は採用しない (再帰が止まらなくなる)
	if k == 0 || k == n {
		return id
	}

	left := b.build(idx[:k], depth+1)
	right := b.build(idx[k:], depth+1)

	node := &b.nodes[id]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = left
	node.Right = right
	return id
}

// findSplit returns the best (feature, threshold) over a random feature subset.
func (b *treeBuilder) findSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	p := b.params

	// partial Fisher-Yates draw of the candidate features
	nf := len(b.features)
	for i := 0; i < p.maxFeatures && i < nf-1; i++ {
		j := i + b.rng.IntN(nf-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
	}

	bestProxy := math.Inf(-1)
	bestFeature, bestThreshold := -1, 0.0
	buf := b.buf[:n]

	for _, f := range b.features[:p.maxFeatures] {
		col := b.cols[f]
		for i, s := range idx {
			buf[i] = sortedSample{idx: s, x: col[s]}
		}
		slices.SortFunc(buf, compareSamples)

		sumL := 0.0
		for i := 0; i < n-1; i++ {
			sumL += b.y[buf[i].idx]
			nL := i + 1
			nR := n - nL
			if nR < p.minSamplesLeaf {
				break
			}
			xi, xn := buf[i].x, buf[i+1].x
			if math.IsNaN(xi) {
				break
			}
			if nL < p.minSamplesLeaf || xi == xn {
				continue
			}

			proxy := b.proxyImprovement(sumL, float64(nL), total-sumL, float64(nR))
			if proxy > bestProxy {
				bestProxy = proxy
				bestFeature = f
				bestThreshold = splitThreshold(xi, xn)
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// splitThreshold returns a threshold t with xi <= t < xn. The midpoint is
// taken as xi/2 + xn/2 so that values near ±MaxFloat64 do not overflow; when
// it is not strictly below xn (infinite or rounded up) xi itself is used.
func splitThreshold(xi, xn float64) float64 {
	if math.IsNaN(xn) {
		return xi
	}
	t := xi/2 + xn/2
	if math.IsNaN(t) || t < xi || t >= xn {
		return xi
	}
	return t
}

// proxyImprovement ranks candidate splits; larger is better. For
// squared_error it is the reduction in SSE up to a constant, for
// friedman_mse it is Friedman's improvement score.
func (b *treeBuilder) proxyImprovement(sumL, nL, sumR, nR float64) float64 {
	if b.params.criterion == CriterionFriedmanMSE {
		diff := nR*sumL - nL*sumR
		return diff * diff / (nL * nR)
	}
	return sumL*sumL/nL + sumR*sumR/nR
}

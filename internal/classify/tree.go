// Package classify implements the three-model attention ensemble:
// bagged decision-tree classifiers for attention, distraction type and
// fatigue level, plus bootstrap training, artifact persistence and
// retraining.
package classify

import "math/rand"

// TreeNode is one node of a trained decision tree. Interior nodes carry
// a feature index and threshold; leaves carry a class probability
// distribution. The struct serializes directly as the artifact format.
type TreeNode struct {
	Feature   int       `json:"f,omitempty"`
	Threshold float64   `json:"t,omitempty"`
	Left      *TreeNode `json:"l,omitempty"`
	Right     *TreeNode `json:"r,omitempty"`
	Probs     []float64 `json:"p,omitempty"`
}

func (n *TreeNode) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// proba walks the tree and returns the leaf's class distribution.
func (n *TreeNode) proba(features []float64) []float64 {
	node := n
	for !node.leaf() {
		if features[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Probs
}

type treeBuilder struct {
	maxDepth   int
	classes    int
	featsP     int // candidate features per split, ~sqrt(total)
	minSamples int
	rng        *rand.Rand
}

func newTreeBuilder(maxDepth, classes, totalFeatures int, rng *rand.Rand) *treeBuilder {
	featsPerSplit := 1
	for featsPerSplit*featsPerSplit < totalFeatures {
		featsPerSplit++
	}
	return &treeBuilder{
		maxDepth:   maxDepth,
		classes:    classes,
		featsP:     featsPerSplit,
		minSamples: 2,
		rng:        rng,
	}
}

func (b *treeBuilder) grow(samples [][]float64, labels []int, depth int) *TreeNode {
	if depth >= b.maxDepth || len(samples) < b.minSamples || pure(labels) {
		return &TreeNode{Probs: distribution(labels, b.classes)}
	}

	feature, threshold, ok := b.bestSplit(samples, labels)
	if !ok {
		return &TreeNode{Probs: distribution(labels, b.classes)}
	}

	var (
		leftX, rightX [][]float64
		leftY, rightY []int
	)
	for i, s := range samples {
		if s[feature] <= threshold {
			leftX = append(leftX, s)
			leftY = append(leftY, labels[i])
		} else {
			rightX = append(rightX, s)
			rightY = append(rightY, labels[i])
		}
	}
	if len(leftX) == 0 || len(rightX) == 0 {
		return &TreeNode{Probs: distribution(labels, b.classes)}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.grow(leftX, leftY, depth+1),
		Right:     b.grow(rightX, rightY, depth+1),
	}
}

// bestSplit searches a random feature subset for the threshold with the
// lowest weighted gini impurity.
func (b *treeBuilder) bestSplit(samples [][]float64, labels []int) (int, float64, bool) {
	total := len(samples[0])
	perm := b.rng.Perm(total)[:b.featsP]

	bestGini := gini(distribution(labels, b.classes))
	var (
		bestFeature   int
		bestThreshold float64
		found         bool
	)
	for _, f := range perm {
		for _, th := range b.thresholds(samples, f) {
			g, ok := splitGini(samples, labels, f, th, b.classes)
			if ok && g < bestGini {
				bestGini = g
				bestFeature = f
				bestThreshold = th
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// thresholds picks candidate cuts for one feature: midpoints between a
// bounded random sample of value pairs. Sampling keeps tree growth
// near-linear in the training set size.
func (b *treeBuilder) thresholds(samples [][]float64, feature int) []float64 {
	const candidates = 12
	out := make([]float64, 0, candidates)
	for i := 0; i < candidates; i++ {
		a := samples[b.rng.Intn(len(samples))][feature]
		c := samples[b.rng.Intn(len(samples))][feature]
		if a != c {
			out = append(out, (a+c)/2)
		}
	}
	return out
}

func splitGini(samples [][]float64, labels []int, feature int, threshold float64, classes int) (float64, bool) {
	leftCounts := make([]float64, classes)
	rightCounts := make([]float64, classes)
	var nLeft, nRight float64
	for i, s := range samples {
		if s[feature] <= threshold {
			leftCounts[labels[i]]++
			nLeft++
		} else {
			rightCounts[labels[i]]++
			nRight++
		}
	}
	if nLeft == 0 || nRight == 0 {
		return 0, false
	}
	for c := 0; c < classes; c++ {
		leftCounts[c] /= nLeft
		rightCounts[c] /= nRight
	}
	n := nLeft + nRight
	return nLeft/n*gini(leftCounts) + nRight/n*gini(rightCounts), true
}

func gini(probs []float64) float64 {
	g := 1.0
	for _, p := range probs {
		g -= p * p
	}
	return g
}

func distribution(labels []int, classes int) []float64 {
	probs := make([]float64, classes)
	if len(labels) == 0 {
		return probs
	}
	for _, l := range labels {
		probs[l]++
	}
	for i := range probs {
		probs[i] /= float64(len(labels))
	}
	return probs
}

func pure(labels []int) bool {
	for _, l := range labels[1:] {
		if l != labels[0] {
			return false
		}
	}
	return true
}

package classify

import "math/rand"

// Forest is a bagged ensemble of decision trees sharing one class
// space. Ensembles are immutable after training; inference is safe for
// concurrent use.
type Forest struct {
	Classes int         `json:"classes"`
	Trees   []*TreeNode `json:"trees"`
}

// ForestConfig controls training. Seed makes fits reproducible.
type ForestConfig struct {
	Estimators int
	MaxDepth   int
	Classes    int
	Seed       int64
}

// TrainForest fits a bagged forest: each tree trains on a bootstrap
// resample of the data with a random feature subset per split.
func TrainForest(samples [][]float64, labels []int, cfg ForestConfig) *Forest {
	rng := rand.New(rand.NewSource(cfg.Seed))
	forest := &Forest{
		Classes: cfg.Classes,
		Trees:   make([]*TreeNode, 0, cfg.Estimators),
	}
	n := len(samples)
	for t := 0; t < cfg.Estimators; t++ {
		bootX := make([][]float64, n)
		bootY := make([]int, n)
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			bootX[i] = samples[j]
			bootY[i] = labels[j]
		}
		builder := newTreeBuilder(cfg.MaxDepth, cfg.Classes, len(samples[0]), rng)
		forest.Trees = append(forest.Trees, builder.grow(bootX, bootY, 0))
	}
	return forest
}

// Proba averages the per-tree class distributions.
func (f *Forest) Proba(features []float64) []float64 {
	probs := make([]float64, f.Classes)
	if len(f.Trees) == 0 {
		return probs
	}
	for _, tree := range f.Trees {
		for c, p := range tree.proba(features) {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs
}

// Predict returns the majority class and its averaged probability.
func (f *Forest) Predict(features []float64) (int, float64) {
	probs := f.Proba(features)
	best := 0
	for c, p := range probs {
		if p > probs[best] {
			best = c
		}
	}
	return best, probs[best]
}

// Accuracy scores the forest against a labeled holdout.
func (f *Forest) Accuracy(samples [][]float64, labels []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for i, s := range samples {
		if pred, _ := f.Predict(s); pred == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

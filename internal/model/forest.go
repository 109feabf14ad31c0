package model

import (
	"math/rand"
)

// ForestConfig controls a random-forest fit.
type ForestConfig struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
	Monotone []int
}

// Forest is a bootstrap-aggregated set of regression trees. Used for smaller
// datasets where boosting would overfit.
type Forest struct {
	Columns int     `json:"columns"`
	Trees   []*Tree `json:"trees"`
}

// TrainForest fits cfg.Trees trees, each on a bootstrap resample of ds.
func TrainForest(ds Dataset, cfg ForestConfig) *Forest {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 12
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = 1
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	tc := treeConfig{maxDepth: cfg.MaxDepth, minLeaf: cfg.MinLeaf, monotone: cfg.Monotone}

	f := &Forest{Columns: len(ds.X[0]), Trees: make([]*Tree, 0, cfg.Trees)}
	n := ds.Len()
	for i := 0; i < cfg.Trees; i++ {
		idx := make([]int, n)
		for j := range idx {
			idx[j] = rng.Intn(n)
		}
		f.Trees = append(f.Trees, growTree(ds, idx, tc))
	}
	return f
}

func (f *Forest) Name() string { return FamilyForest }

// Predict averages the per-tree predictions.
func (f *Forest) Predict(x []float64) (float64, error) {
	if err := checkVector(x, f.Columns); err != nil {
		return 0, err
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

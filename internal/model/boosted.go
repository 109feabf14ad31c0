package model

// BoostedConfig controls a gradient-boosted fit.
type BoostedConfig struct {
	Trees        int
	MaxDepth     int
	MinLeaf      int
	LearningRate float64
	Monotone     []int
}

// Boosted is a gradient-boosted ensemble for squared loss: a base score plus
// shrunken residual trees. Each tree carries the same monotone constraint as
// the forest learner; a sum of non-increasing functions is non-increasing, so
// the ensemble stays constraint-safe.
type Boosted struct {
	Columns      int     `json:"columns"`
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Tree `json:"trees"`
}

// TrainBoosted fits trees sequentially on the residuals of the running
// prediction.
func TrainBoosted(ds Dataset, cfg BoostedConfig) *Boosted {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 12
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = 1
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	tc := treeConfig{maxDepth: cfg.MaxDepth, minLeaf: cfg.MinLeaf, monotone: cfg.Monotone}

	n := ds.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	b := &Boosted{
		Columns:      len(ds.X[0]),
		Base:         weightedMean(ds, idx),
		LearningRate: cfg.LearningRate,
		Trees:        make([]*Tree, 0, cfg.Trees),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = b.Base
	}

	resid := Dataset{X: ds.X, Y: make([]float64, n), W: ds.W}
	for i := 0; i < cfg.Trees; i++ {
		for j := 0; j < n; j++ {
			resid.Y[j] = ds.Y[j] - pred[j]
		}
		t := growTree(resid, idx, tc)
		b.Trees = append(b.Trees, t)
		for j := 0; j < n; j++ {
			pred[j] += b.LearningRate * t.predict(ds.X[j])
		}
	}
	return b
}

func (b *Boosted) Name() string { return FamilyBoosted }

// Predict sums the base score and the shrunken tree outputs.
func (b *Boosted) Predict(x []float64) (float64, error) {
	if err := checkVector(x, b.Columns); err != nil {
		return 0, err
	}
	out := b.Base
	for _, t := range b.Trees {
		out += b.LearningRate * t.predict(x)
	}
	return out, nil
}

package train

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/kalambet/appraise/internal/feature"
	"github.com/kalambet/appraise/internal/model"
)

// Datasets at or below this size use the forest family; larger ones use
// gradient boosting.
const forestRowLimit = 200

// Params are the hyperparameters of a fitted regressor, persisted as JSON in
// the metadata store.
type Params struct {
	Family       string  `json:"family"`
	Trees        int     `json:"n_estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// gridSearch cross-validates a small per-family grid, refits the best
// candidate on all rows, and returns it with its score. The reported score is
// in-sample R² on the refit model, or the candidate's mean cross-validation
// R² when holdout is set.
func gridSearch(ctx context.Context, ds model.Dataset, seed int64, holdout bool) (model.Regressor, Params, float64, error) {
	var grid []Params
	var folds int
	if ds.Len() <= forestRowLimit {
		folds = 2
		for _, trees := range []int{50, 100, 150} {
			grid = append(grid, Params{Family: model.FamilyForest, Trees: trees, MaxDepth: 12})
		}
	} else {
		folds = 5
		for _, trees := range []int{50, 100, 200} {
			grid = append(grid, Params{Family: model.FamilyBoosted, Trees: trees, MaxDepth: 12, LearningRate: 0.1})
		}
	}

	foldIdx := makeFolds(ds.Len(), folds, seed)

	scores := make([]float64, len(grid))
	g, gCtx := errgroup.WithContext(ctx)
	for i, p := range grid {
		i, p := i, p
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			s, err := crossValidate(ds, p, foldIdx, seed)
			if err != nil {
				return fmt.Errorf("evaluating %s n_estimators=%d: %w", p.Family, p.Trees, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Params{}, 0, err
	}

	best := 0
	for i := range grid {
		if scores[i] > scores[best] {
			best = i
		}
	}

	reg := fit(ds, grid[best], seed)
	score := scores[best]
	if !holdout {
		score = rSquared(reg, ds)
	}
	return reg, grid[best], score, nil
}

// makeFolds deterministically shuffles row indices into k folds.
func makeFolds(n, k int, seed int64) [][]int {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	folds := make([][]int, k)
	for i, j := range perm {
		folds[i%k] = append(folds[i%k], j)
	}
	return folds
}

// crossValidate returns the mean validation R² across folds. Fits are
// recency-weighted; validation R² is unweighted, matching the score gate.
func crossValidate(ds model.Dataset, p Params, folds [][]int, seed int64) (float64, error) {
	var sum float64
	for i, valIdx := range folds {
		var trainIdx []int
		for j, f := range folds {
			if j != i {
				trainIdx = append(trainIdx, f...)
			}
		}

		reg := fit(ds.Subset(trainIdx), p, seed)

		estimates := make([]float64, len(valIdx))
		values := make([]float64, len(valIdx))
		for k, j := range valIdx {
			pred, err := reg.Predict(ds.X[j])
			if err != nil {
				return 0, err
			}
			estimates[k] = pred
			values[k] = ds.Y[j]
		}
		sum += stat.RSquaredFrom(estimates, values, nil)
	}
	return sum / float64(len(folds)), nil
}

func fit(ds model.Dataset, p Params, seed int64) model.Regressor {
	switch p.Family {
	case model.FamilyBoosted:
		return model.TrainBoosted(ds, model.BoostedConfig{
			Trees:        p.Trees,
			MaxDepth:     p.MaxDepth,
			LearningRate: p.LearningRate,
			Monotone:     feature.MonotoneSigns[:],
		})
	default:
		return model.TrainForest(ds, model.ForestConfig{
			Trees:    p.Trees,
			MaxDepth: p.MaxDepth,
			Seed:     seed,
			Monotone: feature.MonotoneSigns[:],
		})
	}
}

// rSquared is the in-sample coefficient of determination.
func rSquared(reg model.Regressor, ds model.Dataset) float64 {
	estimates := make([]float64, ds.Len())
	for i := range ds.X {
		p, err := reg.Predict(ds.X[i])
		if err != nil {
			return 0
		}
		estimates[i] = p
	}
	return stat.RSquaredFrom(estimates, ds.Y, nil)
}

// Package model implements the tree regressors trained per make: a weighted
// CART learner, bootstrap-aggregated forests for small datasets, and
// gradient-boosted trees for larger ones. All learners honor a per-column
// monotone sign constraint structurally, so predictions stay monotone even
// for feature values outside the training range.
package model

import (
	"encoding/json"
	"fmt"
)

// Regressor is the minimal contract a trained model satisfies: a feature
// vector in, a predicted log-price out.
type Regressor interface {
	Name() string
	Predict(x []float64) (float64, error)
}

// Dataset is one make's training matrix. Rows of X are feature vectors, Y is
// the log-price target, W the per-row fit weight. All three must have equal
// length.
type Dataset struct {
	X [][]float64
	Y []float64
	W []float64
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.X) }

// Subset returns the dataset restricted to the given row indices.
func (d Dataset) Subset(idx []int) Dataset {
	sub := Dataset{
		X: make([][]float64, len(idx)),
		Y: make([]float64, len(idx)),
		W: make([]float64, len(idx)),
	}
	for i, j := range idx {
		sub.X[i] = d.X[j]
		sub.Y[i] = d.Y[j]
		sub.W[i] = d.W[j]
	}
	return sub
}

// Family tags used in persisted form.
const (
	FamilyForest  = "random_forest"
	FamilyBoosted = "gradient_boosted"
)

type persisted struct {
	Family  string   `json:"family"`
	Forest  *Forest  `json:"forest,omitempty"`
	Boosted *Boosted `json:"boosted,omitempty"`
}

// Marshal serializes a trained regressor with its family tag.
func Marshal(r Regressor) ([]byte, error) {
	var p persisted
	switch m := r.(type) {
	case *Forest:
		p = persisted{Family: FamilyForest, Forest: m}
	case *Boosted:
		p = persisted{Family: FamilyBoosted, Boosted: m}
	default:
		return nil, fmt.Errorf("unsupported regressor type %T", r)
	}
	return json.Marshal(p)
}

// Unmarshal restores a regressor serialized by Marshal.
func Unmarshal(data []byte) (Regressor, error) {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding regressor: %w", err)
	}
	switch p.Family {
	case FamilyForest:
		if p.Forest == nil {
			return nil, fmt.Errorf("regressor payload missing forest")
		}
		return p.Forest, nil
	case FamilyBoosted:
		if p.Boosted == nil {
			return nil, fmt.Errorf("regressor payload missing boosted model")
		}
		return p.Boosted, nil
	default:
		return nil, fmt.Errorf("unknown regressor family %q", p.Family)
	}
}

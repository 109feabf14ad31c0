package model

import (
	"fmt"
	"math"
	"sort"
)

// Tree is a weighted regression tree stored as a flat node array. Node 0 is
// the root; leaves have Feature == -1.
type Tree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeNode struct {
	Feature   int     `json:"feature"` // -1 for leaf
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value"`
}

// treeConfig controls a single tree fit.
type treeConfig struct {
	maxDepth int
	minLeaf  int   // minimum rows per child
	monotone []int // per-column sign; -1 non-increasing, +1 non-decreasing
}

// sign returns the monotone constraint for a column; columns beyond the
// configured slice are unconstrained.
func (c treeConfig) sign(col int) int {
	if col >= len(c.monotone) {
		return 0
	}
	return c.monotone[col]
}

// predict walks the tree for one feature vector.
func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// growTree fits a tree on the rows idx of ds. Splits minimize weighted SSE.
// Splits on a sign-constrained column are rejected unless the child means
// respect the sign, and value bounds are propagated into the subtrees so the
// constraint holds for every path, not just the split point.
func growTree(ds Dataset, idx []int, cfg treeConfig) *Tree {
	t := &Tree{}
	t.grow(ds, idx, cfg, 0, math.Inf(-1), math.Inf(1))
	return t
}

// grow appends the subtree for idx and returns its node index.
func (t *Tree) grow(ds Dataset, idx []int, cfg treeConfig, depth int, lo, hi float64) int {
	value := clamp(weightedMean(ds, idx), lo, hi)

	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: value})

	if depth >= cfg.maxDepth || len(idx) < 2*cfg.minLeaf {
		return self
	}

	sp, ok := bestSplit(ds, idx, cfg)
	if !ok {
		return self
	}

	var leftIdx, rightIdx []int
	for _, j := range idx {
		if ds.X[j][sp.feature] < sp.threshold {
			leftIdx = append(leftIdx, j)
		} else {
			rightIdx = append(rightIdx, j)
		}
	}

	leftLo, leftHi, rightLo, rightHi := lo, hi, lo, hi
	if sign := cfg.sign(sp.feature); sign != 0 {
		mid := clamp((sp.leftMean+sp.rightMean)/2, lo, hi)
		if sign < 0 {
			// Non-increasing: the low-feature side carries the high values.
			leftLo, rightHi = mid, mid
		} else {
			leftHi, rightLo = mid, mid
		}
	}

	left := t.grow(ds, leftIdx, cfg, depth+1, leftLo, leftHi)
	right := t.grow(ds, rightIdx, cfg, depth+1, rightLo, rightHi)

	t.Nodes[self] = treeNode{
		Feature:   sp.feature,
		Threshold: sp.threshold,
		Left:      left,
		Right:     right,
		Value:     value,
	}
	return self
}

type split struct {
	feature   int
	threshold float64
	leftMean  float64
	rightMean float64
	gain      float64
}

// bestSplit scans every column for the weighted-SSE-minimizing threshold.
func bestSplit(ds Dataset, idx []int, cfg treeConfig) (split, bool) {
	if len(idx) == 0 {
		return split{}, false
	}
	cols := len(ds.X[idx[0]])

	var totalW, totalWY, totalWY2 float64
	for _, j := range idx {
		w, y := ds.W[j], ds.Y[j]
		totalW += w
		totalWY += w * y
		totalWY2 += w * y * y
	}
	if totalW <= 0 {
		return split{}, false
	}
	parentSSE := totalWY2 - totalWY*totalWY/totalW

	type point struct{ v, y, w float64 }
	points := make([]point, len(idx))

	best := split{}
	found := false

	for col := 0; col < cols; col++ {
		for i, j := range idx {
			points[i] = point{v: ds.X[j][col], y: ds.Y[j], w: ds.W[j]}
		}
		sort.Slice(points, func(a, b int) bool { return points[a].v < points[b].v })

		var leftW, leftWY, leftWY2 float64
		for i := 0; i < len(points)-1; i++ {
			p := points[i]
			leftW += p.w
			leftWY += p.w * p.y
			leftWY2 += p.w * p.y * p.y

			if points[i+1].v == p.v {
				continue
			}
			if i+1 < cfg.minLeaf || len(points)-i-1 < cfg.minLeaf {
				continue
			}

			rightW := totalW - leftW
			if leftW <= 0 || rightW <= 0 {
				continue
			}
			rightWY := totalWY - leftWY
			rightWY2 := totalWY2 - leftWY2

			leftMean := leftWY / leftW
			rightMean := rightWY / rightW
			if sign := cfg.sign(col); sign != 0 {
				if sign < 0 && leftMean < rightMean {
					continue
				}
				if sign > 0 && leftMean > rightMean {
					continue
				}
			}

			childSSE := (leftWY2 - leftWY*leftWY/leftW) + (rightWY2 - rightWY*rightWY/rightW)
			gain := parentSSE - childSSE
			if gain <= 1e-12 {
				continue
			}
			if !found || gain > best.gain {
				best = split{
					feature:   col,
					threshold: (p.v + points[i+1].v) / 2,
					leftMean:  leftMean,
					rightMean: rightMean,
					gain:      gain,
				}
				found = true
			}
		}
	}
	return best, found
}

func weightedMean(ds Dataset, idx []int) float64 {
	var sumW, sumWY float64
	for _, j := range idx {
		sumW += ds.W[j]
		sumWY += ds.W[j] * ds.Y[j]
	}
	if sumW == 0 {
		return 0
	}
	return sumWY / sumW
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func checkVector(x []float64, want int) error {
	if len(x) != want {
		return fmt.Errorf("feature vector has %d columns, want %d", len(x), want)
	}
	return nil
}

package ml

import (
	"errors"
	"sort"
)

// minSplitGain is the smallest loss reduction that justifies a split.
const minSplitGain = 1e-6

// RegressionTree is one boosting round's tree for one class. Nodes are stored
// flat; the root is Nodes[0] and child indices are absolute.
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Weight     float64 `json:"weight"`
	IsLeaf     bool    `json:"is_leaf"`
}

// treeParams is the subset of boosting parameters a single tree needs.
type treeParams struct {
	maxDepth       int
	lambda         float64
	gamma          float64
	minChildWeight float64
	eta            float64
}

// fitTree grows a tree on second-order gradient statistics (XGBoost exact greedy).
func fitTree(features [][]float64, grad, hess []float64, params treeParams) (*RegressionTree, error) {
	if len(features) == 0 {
		return nil, errors.New("features empty")
	}
	if len(features) != len(grad) || len(grad) != len(hess) {
		return nil, errors.New("features and gradients size mismatch")
	}
	rows := make([]int, len(features))
	for i := range rows {
		rows[i] = i
	}
	b := &treeBuilder{features: features, grad: grad, hess: hess, params: params}
	return &RegressionTree{Nodes: b.buildNode(rows, 0)}, nil
}

// Predict walks the tree and returns the leaf weight. Values below the
// threshold go left.
func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Weight, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] < node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (t *RegressionTree) depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	return t.depthAt(0)
}

func (t *RegressionTree) depthAt(idx int) int {
	node := t.Nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left, right := t.depthAt(node.LeftChild), t.depthAt(node.RightChild)
	if left > right {
		return left + 1
	}
	return right + 1
}

type treeBuilder struct {
	features [][]float64
	grad     []float64
	hess     []float64
	params   treeParams
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) buildNode(rows []int, depth int) []TreeNode {
	g, h := b.sums(rows)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Weight:     b.leafWeight(g, h),
		IsLeaf:     true,
	}}
	if depth >= b.params.maxDepth || len(rows) < 2 {
		return leaf
	}

	best, ok := b.findBestSplit(rows, g, h)
	if !ok {
		return leaf
	}

	leftRows, rightRows := b.partition(rows, best.feature, best.threshold)
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return leaf
	}

	leftNodes := b.buildNode(leftRows, depth+1)
	rightNodes := b.buildNode(rightRows, depth+1)

	root := TreeNode{
		FeatureIdx: best.feature,
		Threshold:  best.threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, shiftChildren(leftNodes, 1)...)
	nodes = append(nodes, shiftChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// findBestSplit scans every feature in ascending value order and keeps the
// split with the largest gain; earlier features win ties.
func (b *treeBuilder) findBestSplit(rows []int, g, h float64) (split, bool) {
	best := split{feature: -1}
	parentScore := score(g, h, b.params.lambda)
	featureCount := len(b.features[rows[0]])
	sorted := make([]int, len(rows))

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.features[sorted[i]][featureIdx] < b.features[sorted[j]][featureIdx]
		})

		var gl, hl float64
		for i := 0; i < len(sorted)-1; i++ {
			row := sorted[i]
			gl += b.grad[row]
			hl += b.hess[row]

			current := b.features[row][featureIdx]
			next := b.features[sorted[i+1]][featureIdx]
			if next <= current {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.params.minChildWeight || hr < b.params.minChildWeight {
				continue
			}
			gain := 0.5*(score(gl, hl, b.params.lambda)+score(gr, hr, b.params.lambda)-parentScore) - b.params.gamma
			if gain > best.gain {
				best = split{feature: featureIdx, threshold: (current + next) / 2, gain: gain}
			}
		}
	}
	if best.feature == -1 || best.gain < minSplitGain {
		return split{}, false
	}
	return best, true
}

func (b *treeBuilder) partition(rows []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, row := range rows {
		if b.features[row][featureIdx] < threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return left, right
}

func (b *treeBuilder) sums(rows []int) (g, h float64) {
	for _, row := range rows {
		g += b.grad[row]
		h += b.hess[row]
	}
	return g, h
}

func (b *treeBuilder) leafWeight(g, h float64) float64 {
	return -g / (h + b.params.lambda) * b.params.eta
}

func score(g, h, lambda float64) float64 {
	return g * g / (h + lambda)
}

func shiftChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

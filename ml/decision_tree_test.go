package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitTreeNestedSplits(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	grad := []float64{-3, -1, 1, 3}
	hess := []float64{1, 1, 1, 1}
	params := treeParams{maxDepth: 3, lambda: 0, minChildWeight: 1, eta: 1}

	tree, err := fitTree(features, grad, hess, params)
	require.NoError(t, err)

	assert.Len(t, tree.Nodes, 7)
	assert.Equal(t, 2, tree.depth())
	assert.InDelta(t, 2.5, tree.Nodes[0].Threshold, 1e-12)

	want := []float64{3, 1, -1, -3}
	for i, f := range features {
		got, err := tree.Predict(f)
		require.NoError(t, err)
		assert.InDelta(t, want[i], got, 1e-12, "row %d", i)
	}
}

func TestFitTreeMinChildWeightBlocksSplit(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}}
	grad := []float64{-0.5, 0.5, -0.5}
	hess := []float64{0.5, 0.5, 0.5}
	params := treeParams{maxDepth: 4, lambda: 1, minChildWeight: 1, eta: 0.1}

	tree, err := fitTree(features, grad, hess, params)
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.True(t, tree.Nodes[0].IsLeaf)
	// -G/(H+lambda)*eta = 0.5/2.5*0.1
	assert.InDelta(t, 0.02, tree.Nodes[0].Weight, 1e-12)
}

func TestFitTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	grad := []float64{-3, -1, 1, 3}
	hess := []float64{1, 1, 1, 1}

	tree, err := fitTree(features, grad, hess, treeParams{maxDepth: 1, minChildWeight: 1, eta: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, tree.depth())
	assert.Len(t, tree.Nodes, 3)
}

func TestRegressionTreeUntrained(t *testing.T) {
	_, err := (&RegressionTree{}).Predict([]float64{1})
	assert.Error(t, err)

	_, err = fitTree(nil, nil, nil, treeParams{})
	assert.Error(t, err)
}

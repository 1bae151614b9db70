package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const hessianFloor = 1e-16

// GradientBoostingParams mirrors the XGBoost knobs the classifier honours.
type GradientBoostingParams struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"lambda"`
	Gamma          float64 `json:"gamma"`
	MinChildWeight float64 `json:"min_child_weight"`
	BaseScore      float64 `json:"base_score"`
}

func DefaultGradientBoostingParams() GradientBoostingParams {
	return GradientBoostingParams{
		NEstimators:    100,
		MaxDepth:       4,
		LearningRate:   0.1,
		Lambda:         1,
		Gamma:          0,
		MinChildWeight: 1,
		BaseScore:      0.5,
	}
}

func (p GradientBoostingParams) validate() error {
	switch {
	case p.NEstimators <= 0:
		return errors.New("n_estimators must be positive")
	case p.MaxDepth <= 0:
		return errors.New("max_depth must be positive")
	case p.LearningRate <= 0:
		return errors.New("learning_rate must be positive")
	case p.Lambda < 0 || p.Gamma < 0 || p.MinChildWeight < 0:
		return errors.New("lambda, gamma and min_child_weight must not be negative")
	}
	return nil
}

// GradientBoostingClassifier is a multiclass softmax booster: every round
// fits one regression tree per class on the log-loss gradients.
type GradientBoostingClassifier struct {
	Params      GradientBoostingParams `json:"params"`
	NumClass    int                    `json:"num_class"`
	NumFeatures int                    `json:"num_features"`
	Rounds      [][]RegressionTree     `json:"rounds"`
}

func NewGradientBoostingClassifier(params GradientBoostingParams) *GradientBoostingClassifier {
	return &GradientBoostingClassifier{Params: params}
}

func (c *GradientBoostingClassifier) Fit(features [][]float64, labels []int, numClass int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClass <= 0 {
		return errors.New("num_class must be positive")
	}
	if err := c.Params.validate(); err != nil {
		return err
	}
	numFeatures := len(features[0])
	for i, f := range features {
		if len(f) != numFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(f), numFeatures)
		}
	}
	for i, label := range labels {
		if label < 0 || label >= numClass {
			return fmt.Errorf("row %d: label %d outside [0, %d)", i, label, numClass)
		}
	}

	c.NumClass = numClass
	c.NumFeatures = numFeatures
	c.Rounds = make([][]RegressionTree, 0, c.Params.NEstimators)

	n := len(features)
	margins := make([][]float64, n)
	for i := range margins {
		margins[i] = make([]float64, numClass)
		floats.AddConst(c.Params.BaseScore, margins[i])
	}

	params := treeParams{
		maxDepth:       c.Params.MaxDepth,
		lambda:         c.Params.Lambda,
		gamma:          c.Params.Gamma,
		minChildWeight: c.Params.MinChildWeight,
		eta:            c.Params.LearningRate,
	}
	probs := make([][]float64, n)
	for i := range probs {
		probs[i] = make([]float64, numClass)
	}
	grad := make([]float64, n)
	hess := make([]float64, n)

	for round := 0; round < c.Params.NEstimators; round++ {
		for i := range margins {
			softmaxInto(probs[i], margins[i])
		}
		trees := make([]RegressionTree, numClass)
		for k := 0; k < numClass; k++ {
			for i := 0; i < n; i++ {
				p := probs[i][k]
				target := 0.0
				if labels[i] == k {
					target = 1
				}
				grad[i] = p - target
				hess[i] = math.Max(2*p*(1-p), hessianFloor)
			}
			tree, err := fitTree(features, grad, hess, params)
			if err != nil {
				return fmt.Errorf("round %d class %d: %w", round, k, err)
			}
			trees[k] = *tree
		}
		for i := range margins {
			for k := range trees {
				w, err := trees[k].Predict(features[i])
				if err != nil {
					return err
				}
				margins[i][k] += w
			}
		}
		c.Rounds = append(c.Rounds, trees)
	}
	return nil
}

// Margins returns the raw per-class scores before softmax.
func (c *GradientBoostingClassifier) Margins(features []float64) ([]float64, error) {
	if len(c.Rounds) == 0 || c.NumClass == 0 {
		return nil, fmt.Errorf("classifier: %w", ErrNotFitted)
	}
	if len(features) != c.NumFeatures {
		return nil, fmt.Errorf("feature shape mismatch, expected: %d, got %d", c.NumFeatures, len(features))
	}
	margins := make([]float64, c.NumClass)
	floats.AddConst(c.Params.BaseScore, margins)
	for _, trees := range c.Rounds {
		if len(trees) != c.NumClass {
			return nil, errors.New("invalid model state")
		}
		for k := range trees {
			w, err := trees[k].Predict(features)
			if err != nil {
				return nil, err
			}
			margins[k] += w
		}
	}
	return margins, nil
}

func (c *GradientBoostingClassifier) PredictProba(features []float64) ([]float64, error) {
	margins, err := c.Margins(features)
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(margins))
	softmaxInto(probs, margins)
	return probs, nil
}

// Predict returns the most probable class code; the lowest code wins ties.
func (c *GradientBoostingClassifier) Predict(features []float64) (int, float64, error) {
	probs, err := c.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	idx := floats.MaxIdx(probs)
	return idx, probs[idx], nil
}

// LogLoss is the mean multiclass cross-entropy of the model on the given set.
func (c *GradientBoostingClassifier) LogLoss(features [][]float64, labels []int) (float64, error) {
	if len(features) == 0 || len(features) != len(labels) {
		return 0, errors.New("features and labels size mismatch")
	}
	total := 0.0
	for i, f := range features {
		probs, err := c.PredictProba(f)
		if err != nil {
			return 0, err
		}
		p := math.Max(probs[labels[i]], 1e-15)
		total -= math.Log(p)
	}
	return total / float64(len(features)), nil
}

func softmaxInto(dst, margins []float64) {
	lse := floats.LogSumExp(margins)
	for k, m := range margins {
		dst[k] = math.Exp(m - lse)
	}
}

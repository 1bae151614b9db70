package ml

// Classifier is a fitted multiclass model over dense feature vectors.
type Classifier interface {
	Fit(features [][]float64, labels []int, numClass int) error
	PredictProba(features []float64) ([]float64, error)
	Predict(features []float64) (int, float64, error)
}

var _ Classifier = (*GradientBoostingClassifier)(nil)

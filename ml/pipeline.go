package ml

import (
	"errors"
	"fmt"
)

// Pipeline chains the column transformer and the boosted classifier.
type Pipeline struct {
	Preprocessor *ColumnTransformer          `json:"preprocessor"`
	Classifier   *GradientBoostingClassifier `json:"classifier"`
}

func NewPipeline(params GradientBoostingParams) *Pipeline {
	return &Pipeline{
		Preprocessor: NewColumnTransformer(),
		Classifier:   NewGradientBoostingClassifier(params),
	}
}

func (p *Pipeline) Fit(rows []Row, labels []int, numClass int) error {
	if err := p.Preprocessor.Fit(rows); err != nil {
		return fmt.Errorf("fit preprocessor: %w", err)
	}
	vectors, err := p.Preprocessor.TransformAll(rows)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := p.Classifier.Fit(vectors, labels, numClass); err != nil {
		return fmt.Errorf("fit classifier: %w", err)
	}
	return nil
}

func (p *Pipeline) PredictProba(row Row) ([]float64, error) {
	vector, err := p.Preprocessor.Transform(row)
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(vector)
}

func (p *Pipeline) Predict(row Row) (int, float64, error) {
	vector, err := p.Preprocessor.Transform(row)
	if err != nil {
		return 0, 0, err
	}
	return p.Classifier.Predict(vector)
}

// Evaluate returns log-loss and accuracy over already encoded rows.
func (p *Pipeline) Evaluate(rows []Row, labels []int) (logLoss, accuracy float64, err error) {
	if len(rows) == 0 || len(rows) != len(labels) {
		return 0, 0, errors.New("rows and labels size mismatch")
	}
	vectors, err := p.Preprocessor.TransformAll(rows)
	if err != nil {
		return 0, 0, err
	}
	logLoss, err = p.Classifier.LogLoss(vectors, labels)
	if err != nil {
		return 0, 0, err
	}
	var correct int
	for i, v := range vectors {
		label, _, err := p.Classifier.Predict(v)
		if err != nil {
			return 0, 0, err
		}
		if label == labels[i] {
			correct++
		}
	}
	return logLoss, float64(correct) / float64(len(vectors)), nil
}

func (p *Pipeline) validate() error {
	if p.Preprocessor == nil || p.Preprocessor.Local == nil {
		return errors.New("pipeline has no preprocessor")
	}
	if len(p.Preprocessor.Passthrough) != 2 {
		return fmt.Errorf("pipeline expects 2 passthrough columns, got %d", len(p.Preprocessor.Passthrough))
	}
	if p.Classifier == nil || len(p.Classifier.Rounds) == 0 {
		return errors.New("pipeline has no fitted classifier")
	}
	if p.Classifier.NumFeatures != p.Preprocessor.NumFeatures() {
		return fmt.Errorf("classifier expects %d features, preprocessor yields %d",
			p.Classifier.NumFeatures, p.Preprocessor.NumFeatures())
	}
	return nil
}

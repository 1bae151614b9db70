package ml

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TrainingSummary reports training-set fit; there is no held-out split.
type TrainingSummary struct {
	DataPoints  int
	Classes     []string
	ClassCounts []int
	Locais      int
	LogLoss     float64
	Accuracy    float64
	Duration    time.Duration
	TrainedAt   time.Time
}

type Trainer struct {
	Params GradientBoostingParams
	Clock  clockwork.Clock
}

func NewTrainer(params GradientBoostingParams) *Trainer {
	return &Trainer{Params: params, Clock: clockwork.NewRealClock()}
}

// Train fits the label encoder and the pipeline on every occurrence and
// returns the resulting artifact.
func (t *Trainer) Train(occurrences []Occurrence) (*Artifact, *TrainingSummary, error) {
	start := t.Clock.Now()

	rows, rawLabels, err := BuildTrainingSet(occurrences)
	if err != nil {
		return nil, nil, err
	}

	encoder := &LabelEncoder{}
	labels, err := encoder.FitTransform(rawLabels)
	if err != nil {
		return nil, nil, fmt.Errorf("encode labels: %w", err)
	}

	pipeline := NewPipeline(t.Params)
	if err := pipeline.Fit(rows, labels, encoder.NumClasses()); err != nil {
		return nil, nil, err
	}

	logLoss, accuracy, err := pipeline.Evaluate(rows, labels)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate: %w", err)
	}

	trainedAt := t.Clock.Now().UTC()
	artifact := &Artifact{
		Version:      ArtifactVersion,
		ModelType:    ModelTypeGradientBoosting,
		TrainedAt:    trainedAt,
		DataPoints:   len(rows),
		Pipeline:     pipeline,
		LabelEncoder: encoder,
	}
	summary := &TrainingSummary{
		DataPoints:  len(rows),
		Classes:     append([]string(nil), encoder.Classes...),
		ClassCounts: ClassCounts(labels, encoder.NumClasses()),
		Locais:      len(pipeline.Preprocessor.Local.Categories),
		LogLoss:     logLoss,
		Accuracy:    accuracy,
		Duration:    t.Clock.Since(start),
		TrainedAt:   trainedAt,
	}

	zap.S().Infow("model trained",
		"data_points", summary.DataPoints,
		"classes", len(summary.Classes),
		"locais", summary.Locais,
		"log_loss", summary.LogLoss,
		"accuracy", summary.Accuracy,
		"duration", summary.Duration,
	)
	return artifact, summary, nil
}

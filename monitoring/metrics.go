package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ocorrencias"

// Label values.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
	CacheHit       = "hit"
	CacheMiss      = "miss"
)

// Metrics holds the Prometheus collectors of the predictor service.
type Metrics struct {
	Predictions       *prometheus.CounterVec // labels: outcome={success,invalid,error}
	PredictedClass    *prometheus.CounterVec // labels: classe
	InferenceDuration prometheus.Histogram
	CacheLookups      *prometheus.CounterVec // labels: result={hit,miss}
	ModelClasses      prometheus.Gauge
	ModelTrainedAt    prometheus.Gauge
	ArtifactStale     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		PredictedClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predicted_class_total",
			Help:      "Successful predictions by predicted class.",
		}, []string{"classe"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent running the pipeline for one request.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		ModelClasses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_classes",
			Help:      "Number of classes known to the loaded model.",
		}),
		ModelTrainedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_trained_at_seconds",
			Help:      "Unix time the loaded model was trained.",
		}),
		ArtifactStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_stale",
			Help:      "1 when the artifact on disk changed after it was loaded.",
		}),
	}

	reg.MustRegister(
		m.Predictions,
		m.PredictedClass,
		m.InferenceDuration,
		m.CacheLookups,
		m.ModelClasses,
		m.ModelTrainedAt,
		m.ArtifactStale,
	)
	return m
}

// ObserveModel records the static facts of the loaded model.
func (m *Metrics) ObserveModel(classes int, trainedAt time.Time) {
	m.ModelClasses.Set(float64(classes))
	if !trainedAt.IsZero() {
		m.ModelTrainedAt.Set(float64(trainedAt.Unix()))
	}
	m.ArtifactStale.Set(0)
}

func (m *Metrics) ObserveInference(d time.Duration) {
	m.InferenceDuration.Observe(d.Seconds())
}

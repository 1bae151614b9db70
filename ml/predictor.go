package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
)

// LabelProbability pairs a decoded label with its predicted probability.
type LabelProbability struct {
	Label       string
	Probability float64
}

// Probabilities keeps label-encoder order and marshals as a JSON object in that order.
type Probabilities []LabelProbability

func (p Probabilities) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lp := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lp.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(lp.Probability)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p Probabilities) Map() map[string]float64 {
	m := make(map[string]float64, len(p))
	for _, lp := range p {
		m[lp.Label] = lp.Probability
	}
	return m
}

type Prediction struct {
	Label         string        `json:"classe_predita"`
	Probabilities Probabilities `json:"probabilidades"`
}

// ModelInfo describes the loaded artifact.
type ModelInfo struct {
	ModelType  string                 `json:"model_type"`
	Version    int                    `json:"version"`
	TrainedAt  time.Time              `json:"trained_at"`
	DataPoints int                    `json:"data_points"`
	Classes    []string               `json:"classes"`
	Locais     []string               `json:"locais"`
	Features   []string               `json:"features"`
	Params     GradientBoostingParams `json:"params"`
}

// Predictor serves predictions from one loaded artifact. It is never
// mutated after construction and is safe for concurrent use.
type Predictor struct {
	artifact *Artifact
}

func NewPredictor(artifact *Artifact) (*Predictor, error) {
	if artifact == nil {
		return nil, errors.New("artifact is nil")
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{artifact: artifact}, nil
}

func (p *Predictor) Predict(row Row) (*Prediction, error) {
	row.Local = norm.NFC.String(row.Local)
	probs, err := p.artifact.Pipeline.PredictProba(row)
	if err != nil {
		return nil, err
	}
	code := floats.MaxIdx(probs)
	labels, err := p.artifact.LabelEncoder.InverseTransform([]int{code})
	if err != nil {
		return nil, err
	}

	classes := p.artifact.LabelEncoder.Classes
	distribution := make(Probabilities, len(classes))
	for i, class := range classes {
		distribution[i] = LabelProbability{Label: class, Probability: probs[i]}
	}
	return &Prediction{Label: labels[0], Probabilities: distribution}, nil
}

// PredictValues coerces decoded JSON values into a Row and predicts. local
// must be a string; hora and dia_semana must be numbers or booleans.
func (p *Predictor) PredictValues(local, hora, diaSemana any) (*Prediction, error) {
	localStr, ok := local.(string)
	if !ok {
		return nil, fmt.Errorf("local: expected string, got %s", typeName(local))
	}
	h, err := toNumber("hora", hora)
	if err != nil {
		return nil, err
	}
	d, err := toNumber("dia_semana", diaSemana)
	if err != nil {
		return nil, err
	}
	return p.Predict(Row{Local: localStr, Hora: h, DiaSemana: d})
}

func (p *Predictor) Info() ModelInfo {
	a := p.artifact
	return ModelInfo{
		ModelType:  a.ModelType,
		Version:    a.Version,
		TrainedAt:  a.TrainedAt,
		DataPoints: a.DataPoints,
		Classes:    append([]string(nil), a.LabelEncoder.Classes...),
		Locais:     append([]string(nil), a.Pipeline.Preprocessor.Local.Categories...),
		Features:   a.Pipeline.Preprocessor.FeatureNames(),
		Params:     a.Pipeline.Classifier.Params,
	}
}

func toNumber(field string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return 0, fmt.Errorf("%s: could not convert string to float: %q", field, n)
	default:
		return 0, fmt.Errorf("%s: expected number, got %s", field, typeName(v))
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

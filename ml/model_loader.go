package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	ArtifactVersion           = 1
	ModelTypeGradientBoosting = "gradient_boosting"
)

var ErrModelNotTrained = errors.New("model not trained")

// Artifact is the persisted output of one training run: the fitted pipeline
// plus the label encoder needed to decode its predictions.
type Artifact struct {
	Version      int           `json:"version"`
	ModelType    string        `json:"model_type"`
	TrainedAt    time.Time     `json:"trained_at"`
	DataPoints   int           `json:"data_points"`
	Pipeline     *Pipeline     `json:"pipeline"`
	LabelEncoder *LabelEncoder `json:"label_encoder"`
}

func (a *Artifact) Validate() error {
	if a.Pipeline == nil {
		return errors.New("artifact has no pipeline")
	}
	if a.LabelEncoder == nil || len(a.LabelEncoder.Classes) == 0 {
		return errors.New("artifact has no label encoder")
	}
	if err := a.Pipeline.validate(); err != nil {
		return err
	}
	if a.Pipeline.Classifier.NumClass != len(a.LabelEncoder.Classes) {
		return fmt.Errorf("classifier has %d classes, label encoder has %d",
			a.Pipeline.Classifier.NumClass, len(a.LabelEncoder.Classes))
	}
	return nil
}

// Save writes the artifact to path, replacing any existing file. The write
// goes to a temp file in the same directory first and is renamed into place.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadArtifact reads an artifact written by Save. A missing file yields an
// error wrapping ErrModelNotTrained.
func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found, run the trainer first", ErrModelNotTrained, path)
		}
		return nil, err
	}

	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if artifact.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", artifact.Version)
	}

	switch artifact.ModelType {
	case ModelTypeGradientBoosting:
		if err := artifact.Validate(); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", path, err)
		}
		return &artifact, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", artifact.ModelType)
	}
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocorrencias/config"
	"ocorrencias/db"
	"ocorrencias/ml"
)

const parksCSV = "local,timestamp,tipo\n" +
	"ParkA,2023-05-01T10:15:00,theft\n" +
	"ParkB,2023-05-02T22:00:00,vandalism\n" +
	"ParkA,2023-05-03T10:00:00,theft\n"

func TestTrainWritesArtifactAndHistory(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "ocorrencias.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte(parksCSV), 0o644))

	cfg := config.Default()
	cfg.Training.DataPath = dataPath
	cfg.Model.Path = filepath.Join(dir, "model.pkl")
	cfg.Database.Path = filepath.Join(dir, "ocorrencias.db")

	var out bytes.Buffer
	require.NoError(t, train(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "model saved to "+cfg.Model.Path)

	artifact, err := ml.LoadArtifact(cfg.Model.Path)
	require.NoError(t, err)
	predictor, err := ml.NewPredictor(artifact)
	require.NoError(t, err)
	prediction, err := predictor.Predict(ml.Row{Local: "ParkA", Hora: 10, DiaSemana: 0})
	require.NoError(t, err)
	assert.Equal(t, "theft", prediction.Label)

	store, err := db.Open(cfg.Database.Path, nil)
	require.NoError(t, err)
	defer store.Close()
	logs, err := store.LoadTrainingLog(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].DataPoints)
	assert.Equal(t, []string{"theft", "vandalism"}, logs[0].Classes)
}

func TestTrainAbortsOnBadRow(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "ocorrencias.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte(parksCSV+"ParkC,ontem,theft\n"), 0o644))

	cfg := config.Default()
	cfg.Training.DataPath = dataPath
	cfg.Model.Path = filepath.Join(dir, "model.pkl")

	err := train(context.Background(), cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 5")
	assert.NoFileExists(t, cfg.Model.Path)
}

func TestRootCmdFlags(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.csv")
	modelPath := filepath.Join(dir, "out", "model.pkl")
	require.NoError(t, os.WriteFile(dataPath, []byte(parksCSV), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--data", dataPath,
		"--model_path", modelPath,
		"--encoding", "utf-8",
	})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, modelPath)
	assert.Contains(t, out.String(), modelPath)

	cmd = newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "missing.yaml"), "--data", filepath.Join(dir, "nope.csv")})
	assert.Error(t, cmd.Execute())
}

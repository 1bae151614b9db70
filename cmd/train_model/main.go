package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocorrencias/config"
	"ocorrencias/db"
	"ocorrencias/logger"
	"ocorrencias/ml"
	"ocorrencias/pipeline"
)

type trainOptions struct {
	configPath string
	dataPath   string
	modelPath  string
	encoding   string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:           "train_model",
		Short:         "Train the occurrence-type classifier from a CSV file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("data") {
				cfg.Training.DataPath = opts.dataPath
			}
			if cmd.Flags().Changed("model_path") {
				cfg.Model.Path = opts.modelPath
			}
			if cmd.Flags().Changed("encoding") {
				cfg.Training.Encoding = opts.encoding
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			restore, err := logger.Init(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			defer restore()

			return train(cmd.Context(), cfg, out)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&opts.dataPath, "data", "ocorrencias.csv", "training CSV with columns local,timestamp,tipo")
	cmd.Flags().StringVar(&opts.modelPath, "model_path", "model.pkl", "model output path")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "utf-8", "CSV charset: utf-8, latin1, windows-1252")
	return cmd
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func train(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	records, _, err := pipeline.IngestFile(cfg.Training.DataPath, cfg.Training.Encoding)
	if err != nil {
		return fmt.Errorf("failed to read training data: %w", err)
	}
	occurrences, err := pipeline.Clean(records)
	if err != nil {
		return fmt.Errorf("failed to clean training data: %w", err)
	}

	trainer := ml.NewTrainer(trainingParams(cfg.Training))
	artifact, summary, err := trainer.Train(occurrences)
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}
	if err := artifact.Save(cfg.Model.Path); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	if cfg.Database.Path != "" {
		if err := recordTraining(ctx, cfg, summary); err != nil {
			// The artifact is already saved at this point.
			zap.S().Warnw("failed to record training run", "error", err)
		}
	}

	fmt.Fprintf(out, "model saved to %s (%d records, %d classes, train accuracy %.2f)\n",
		cfg.Model.Path, summary.DataPoints, len(summary.Classes), summary.Accuracy)
	return nil
}

func trainingParams(tc config.TrainingConfig) ml.GradientBoostingParams {
	params := ml.DefaultGradientBoostingParams()
	params.NEstimators = tc.NEstimators
	params.MaxDepth = tc.MaxDepth
	params.LearningRate = tc.LearningRate
	params.Lambda = tc.Lambda
	params.MinChildWeight = tc.MinChildWeight
	return params
}

func recordTraining(ctx context.Context, cfg *config.Config, summary *ml.TrainingSummary) error {
	store, err := db.Open(cfg.Database.Path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.SaveTrainingLog(ctx, db.TrainingLog{
		ModelType:  ml.ModelTypeGradientBoosting,
		ModelPath:  cfg.Model.Path,
		DataPath:   cfg.Training.DataPath,
		DataPoints: summary.DataPoints,
		Classes:    summary.Classes,
		LogLoss:    summary.LogLoss,
		Accuracy:   summary.Accuracy,
		DurationMS: summary.Duration.Milliseconds(),
		TrainedAt:  summary.TrainedAt,
	})
	return err
}

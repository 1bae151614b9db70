package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("database closed")

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_type VARCHAR(50) NOT NULL,
        model_path TEXT NOT NULL,
        data_path TEXT NOT NULL,
        data_points INTEGER NOT NULL,
        classes TEXT NOT NULL,
        log_loss REAL,
        accuracy REAL,
        duration_ms INTEGER,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id VARCHAR(32),
        local TEXT NOT NULL,
        hora REAL NOT NULL,
        dia_semana REAL NOT NULL,
        predicted_label TEXT NOT NULL,
        confidence REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

// Store keeps the training history and, optionally, served predictions.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open creates or opens the SQLite file at path and ensures the schema.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database, clock: clock}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type TrainingLog struct {
	ID         int64     `json:"id"`
	ModelType  string    `json:"model_type"`
	ModelPath  string    `json:"model_path"`
	DataPath   string    `json:"data_path"`
	DataPoints int       `json:"data_points"`
	Classes    []string  `json:"classes"`
	LogLoss    float64   `json:"log_loss"`
	Accuracy   float64   `json:"accuracy"`
	DurationMS int64     `json:"duration_ms"`
	TrainedAt  time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, entry TrainingLog) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = s.clock.Now()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_type, model_path, data_path, data_points, classes,
            log_loss, accuracy, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.ModelType,
		entry.ModelPath,
		entry.DataPath,
		entry.DataPoints,
		strings.Join(entry.Classes, "\n"),
		entry.LogLoss,
		entry.Accuracy,
		entry.DurationMS,
		entry.TrainedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LoadTrainingLog returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	query := `
        SELECT id, model_type, model_path, data_path, data_points, classes,
               log_loss, accuracy, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			log     TrainingLog
			classes string
		)
		if err := rows.Scan(&log.ID, &log.ModelType, &log.ModelPath, &log.DataPath, &log.DataPoints,
			&classes, &log.LogLoss, &log.Accuracy, &log.DurationMS, &log.TrainedAt); err != nil {
			return nil, err
		}
		if classes != "" {
			log.Classes = strings.Split(classes, "\n")
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type PredictionLog struct {
	RequestID      string    `json:"request_id"`
	Local          string    `json:"local"`
	Hora           float64   `json:"hora"`
	DiaSemana      float64   `json:"dia_semana"`
	PredictedLabel string    `json:"predicted_label"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Store) SavePrediction(ctx context.Context, p PredictionLog) error {
	if s.db == nil {
		return ErrClosed
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            request_id, local, hora, dia_semana, predicted_label, confidence, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `, p.RequestID, p.Local, p.Hora, p.DiaSemana, p.PredictedLabel, p.Confidence, p.CreatedAt.UTC())
	return err
}

// CountPredictions returns how many predictions have been logged.
func (s *Store) CountPredictions(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM predictions").Scan(&count)
	return count, err
}

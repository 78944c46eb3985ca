package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"counsellor/registry"
)

var ErrNotInitialized = errors.New("database not initialized")

const schema = `
    CREATE TABLE IF NOT EXISTS recommendations (
        id TEXT PRIMARY KEY,
        owner TEXT NOT NULL,
        dataset VARCHAR(50) NOT NULL,
        prediction TEXT NOT NULL,
        student_profile TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_recommendations_owner ON recommendations(owner, created_at);
    CREATE TABLE IF NOT EXISTS evaluation_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        dataset VARCHAR(50) NOT NULL,
        model_version INTEGER NOT NULL,
        accuracy REAL,
        correct INTEGER,
        total INTEGER,
        confusion TEXT,
        evaluated_at DATETIME NOT NULL
    );
    `

// Store persists saved recommendations and the evaluation history.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// sqlite serializes writers anyway
	database.SetMaxOpenConns(1)
	database.SetConnMaxLifetime(time.Hour)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Recommendation is a prediction a user chose to keep.
type Recommendation struct {
	ID             string                 `json:"id"`
	Owner          string                 `json:"owner"`
	DatasetName    string                 `json:"datasetName"`
	Prediction     string                 `json:"prediction"`
	StudentProfile map[string]interface{} `json:"studentProfile,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

func (s *Store) SaveRecommendation(ctx context.Context, rec *Recommendation) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if rec.Owner == "" || rec.DatasetName == "" || rec.Prediction == "" {
		return errors.New("owner, dataset and prediction required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	profile, err := json.Marshal(rec.StudentProfile)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO recommendations (id, owner, dataset, prediction, student_profile, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Owner, rec.DatasetName, rec.Prediction, string(profile), rec.Timestamp)
	return err
}

// ListRecommendations returns an owner's saved recommendations, newest first.
func (s *Store) ListRecommendations(ctx context.Context, owner string, limit int) ([]Recommendation, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, owner, dataset, prediction, student_profile, created_at
        FROM recommendations
        WHERE owner = ?
        ORDER BY created_at DESC
        LIMIT ?`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := make([]Recommendation, 0)
	for rows.Next() {
		var rec Recommendation
		var profile sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.DatasetName, &rec.Prediction, &profile, &rec.Timestamp); err != nil {
			return nil, err
		}
		if profile.Valid && profile.String != "" && profile.String != "null" {
			if err := json.Unmarshal([]byte(profile.String), &rec.StudentProfile); err != nil {
				return nil, fmt.Errorf("recommendation %s: %w", rec.ID, err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// EvaluationLog is one stored run of registry.Evaluate.
type EvaluationLog struct {
	ID           int64                     `json:"id"`
	Dataset      string                    `json:"datasetName"`
	ModelVersion uint64                    `json:"modelVersion"`
	Accuracy     float64                   `json:"accuracy"`
	Correct      int                       `json:"correctPredictions"`
	Total        int                       `json:"totalTestRecords"`
	Confusion    map[string]map[string]int `json:"confusionMatrix"`
	EvaluatedAt  time.Time                 `json:"evaluatedAt"`
}

func (s *Store) SaveEvaluation(ctx context.Context, eval *registry.Evaluation) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	confusion, err := json.Marshal(eval.Confusion)
	if err != nil {
		return err
	}
	evaluatedAt := eval.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO evaluation_log (dataset, model_version, accuracy, correct, total, confusion, evaluated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		eval.Dataset, int64(eval.Version), eval.Accuracy, eval.Correct, eval.Total, string(confusion), evaluatedAt.UTC())
	return err
}

// LoadEvaluationLog returns stored evaluations, newest first. An empty
// dataset selects every dataset.
func (s *Store) LoadEvaluationLog(ctx context.Context, dataset string, limit int) ([]EvaluationLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, dataset, model_version, accuracy, correct, total, confusion, evaluated_at
        FROM evaluation_log
        WHERE ? = '' OR dataset = ?
        ORDER BY evaluated_at DESC, id DESC
        LIMIT ?`, dataset, dataset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]EvaluationLog, 0)
	for rows.Next() {
		var log EvaluationLog
		var version int64
		var confusion sql.NullString
		if err := rows.Scan(&log.ID, &log.Dataset, &version, &log.Accuracy, &log.Correct, &log.Total, &confusion, &log.EvaluatedAt); err != nil {
			return nil, err
		}
		log.ModelVersion = uint64(version)
		if confusion.Valid && confusion.String != "" {
			if err := json.Unmarshal([]byte(confusion.String), &log.Confusion); err != nil {
				return nil, err
			}
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

package resultpg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vncsentinel/internal/logger"
	"vncsentinel/pkg/models"
)

// Config configures the Postgres writer.
type Config struct {
	DSN   string
	Table string
}

// Writer inserts detection records into a Postgres table for long-term
// dashboard queries. Batches are written transactionally.
type Writer struct {
	db    *sql.DB
	table string
}

// NewWriter opens the database and verifies connectivity.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	if cfg.Table == "" {
		cfg.Table = "vnc_detections"
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Infof("Postgres detection writer initialized: table=%s", cfg.Table)
	return &Writer{db: db, table: pq.QuoteIdentifier(cfg.Table)}, nil
}

// WriteResults inserts a batch of detection records in one transaction.
func (w *Writer) WriteResults(records []*models.DetectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin postgres tx: %w", err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (record_id, session_id, observed_at, risk_level, threat_categories, anomaly_score, recommended_action, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, w.table))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		payload, err := json.Marshal(record.Result)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode detection result: %w", err)
		}
		categories := make([]string, 0, len(record.Result.ThreatCategories))
		for _, c := range record.Result.ThreatCategories {
			categories = append(categories, string(c))
		}

		if _, err := stmt.Exec(
			record.RecordID,
			record.SessionID,
			record.ObservedAt.UTC(),
			string(record.Result.RiskLevel),
			pq.Array(categories),
			record.Result.AnomalyScore,
			string(record.Result.RecommendedAction),
			payload,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert detection record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit detection batch: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

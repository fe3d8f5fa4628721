package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/pkg/packager"
)

const SQLDriver = "sqlite3"

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	video_name  TEXT NOT NULL,
	source      TEXT NOT NULL,
	key_id      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_video_name ON runs (video_name);
`

// Run is one packaging attempt of a single video.
type Run struct {
	ID         int64
	VideoName  string
	Source     string
	KeyID      string
	Status     string
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Ledger keeps the packaging history in a SQLite database.
type Ledger struct {
	logger zerolog.Logger
	path   string
	db     *sql.DB
}

func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}

	db, err := sql.Open(SQLDriver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return &Ledger{
		logger: log.With().Str("module", "ledger").Str("path", path).Logger(),
		path:   path,
		db:     db,
	}, nil
}

// Record implements packager.Recorder.
func (l *Ledger) Record(ctx context.Context, result packager.Result) error {
	status, reason := StatusSucceeded, ""
	if !result.Succeeded() {
		status, reason = StatusFailed, result.Err.Error()
	}

	res, err := l.db.ExecContext(ctx,
		"INSERT INTO runs(video_name, source, key_id, status, reason, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		result.Video, result.Source, result.KeyID, status, reason, result.StartedAt.UTC(), result.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	id, _ := res.LastInsertId()
	l.logger.Debug().Int64("id", id).Str("video", result.Video).Str("status", status).Msg("run recorded")
	return nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx,
		"SELECT id, video_name, source, key_id, status, reason, started_at, finished_at FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.VideoName, &r.Source, &r.KeyID, &r.Status, &r.Reason, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to extract fields from row: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func (l *Ledger) Close() error {
	l.logger.Debug().Msg("closing ledger")
	return l.db.Close()
}

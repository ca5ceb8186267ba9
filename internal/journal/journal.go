// Package journal keeps a SQLite history of capture attempts, successful or
// not, for the history command and the REST surface.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

// Record is one capture attempt.
type Record struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	FilePath  string `json:"filePath,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	PHash     uint64 `json:"phash,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the attempt produced no file.
func (r Record) Failed() bool { return r.Error != "" }

// Journal is a SQLite-backed capture history.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileSystemError, "create journal dir")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileSystemError, "open journal")
	}
	// one writer; SQLite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS captures (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			file_path TEXT,
			file_size INTEGER,
			width INTEGER,
			height INTEGER,
			phash INTEGER,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_session_ts ON captures(session_id, ts_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_ts ON captures(ts_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return apperrors.Wrap(err, apperrors.CodeFileSystemError, "init journal schema")
		}
	}
	return nil
}

// Insert writes records in one transaction.
func (j *Journal) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "begin journal tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO captures
		(session_id, ts_ms, file_path, file_size, width, height, phash, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "prepare journal insert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.Timestamp, nullString(r.FilePath), r.FileSize,
			r.Width, r.Height, int64(r.PHash), nullString(r.Error)); err != nil {
			return apperrors.Wrap(err, apperrors.CodeFileSystemError, "insert journal record")
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "commit journal tx")
	}
	return nil
}

// List returns the newest records for sessionID, newest first. An empty
// sessionID lists every session. limit <= 0 means 100.
func (j *Journal) List(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, session_id, ts_ms, file_path, file_size, width, height, phash, error FROM captures`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY ts_ms DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileSystemError, "query journal")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			path     sql.NullString
			size     sql.NullInt64
			w, h     sql.NullInt64
			phash    sql.NullInt64
			errorMsg sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Timestamp, &path, &size, &w, &h, &phash, &errorMsg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeFileSystemError, "scan journal row")
		}
		r.FilePath = path.String
		r.FileSize = size.Int64
		r.Width, r.Height = int(w.Int64), int(h.Int64)
		r.PHash = uint64(phash.Int64)
		r.Error = errorMsg.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileSystemError, "iterate journal rows")
	}
	return out, nil
}

// Prune deletes records older than cutoff and returns how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM captures WHERE ts_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeFileSystemError, "prune journal")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package db persists session and job history for the splat service. The
// in-memory session store is authoritative for live sessions; the database
// keeps a durable record for the admin console and the report tool.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path and ensures the base
// schema exists.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			width             INTEGER NOT NULL,
			height            INTEGER NOT NULL,
			focal_length_px   DOUBLE NOT NULL,
			color_space       TEXT NOT NULL,
			gaussian_count    INTEGER NOT NULL,
			ply_path          TEXT NOT NULL,
			created_at_ns     BIGINT NOT NULL,
			evicted_at_ns     BIGINT
		);
		CREATE TABLE IF NOT EXISTS jobs (
			job_id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			kind              TEXT NOT NULL,
			status            TEXT NOT NULL,
			duration_ms       DOUBLE NOT NULL,
			detail            TEXT,
			created_at_ns     BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs (created_at_ns);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// SessionRow is the durable record of a prediction session.
type SessionRow struct {
	SessionID     string  `json:"session_id"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	FocalLengthPx float64 `json:"focal_length_px"`
	ColorSpace    string  `json:"color_space"`
	GaussianCount int     `json:"gaussian_count"`
	PLYPath       string  `json:"ply_path"`
	CreatedAtNs   int64   `json:"created_at_ns"`
	EvictedAtNs   *int64  `json:"evicted_at_ns,omitempty"`
}

// InsertSession records a freshly created session.
func (db *DB) InsertSession(row *SessionRow) error {
	if row.CreatedAtNs == 0 {
		row.CreatedAtNs = time.Now().UnixNano()
	}

	_, err := db.Exec(
		`INSERT INTO sessions (
			session_id, width, height, focal_length_px, color_space,
			gaussian_count, ply_path, created_at_ns, evicted_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID,
		row.Width,
		row.Height,
		row.FocalLengthPx,
		row.ColorSpace,
		row.GaussianCount,
		row.PLYPath,
		row.CreatedAtNs,
		nullInt64(row.EvictedAtNs),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// MarkSessionEvicted stamps a session row with its eviction time. The row
// itself is kept for history.
func (db *DB) MarkSessionEvicted(sessionID string, evictedAtNs int64) error {
	result, err := db.Exec(
		`UPDATE sessions SET evicted_at_ns = ? WHERE session_id = ?`,
		evictedAtNs, sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark session evicted: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check eviction result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// GetSession retrieves one session row by id.
func (db *DB) GetSession(sessionID string) (*SessionRow, error) {
	var row SessionRow
	var evictedAtNs sql.NullInt64

	err := db.QueryRow(
		`SELECT session_id, width, height, focal_length_px, color_space,
		        gaussian_count, ply_path, created_at_ns, evicted_at_ns
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(
		&row.SessionID,
		&row.Width,
		&row.Height,
		&row.FocalLengthPx,
		&row.ColorSpace,
		&row.GaussianCount,
		&row.PLYPath,
		&row.CreatedAtNs,
		&evictedAtNs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if evictedAtNs.Valid {
		v := evictedAtNs.Int64
		row.EvictedAtNs = &v
	}
	return &row, nil
}

// ListSessions retrieves up to limit session rows, newest first. A limit of
// zero or less defaults to 100.
func (db *DB) ListSessions(limit int) ([]*SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT session_id, width, height, focal_length_px, color_space,
		        gaussian_count, ply_path, created_at_ns, evicted_at_ns
		 FROM sessions ORDER BY created_at_ns DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		var row SessionRow
		var evictedAtNs sql.NullInt64
		if err := rows.Scan(
			&row.SessionID,
			&row.Width,
			&row.Height,
			&row.FocalLengthPx,
			&row.ColorSpace,
			&row.GaussianCount,
			&row.PLYPath,
			&row.CreatedAtNs,
			&evictedAtNs,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if evictedAtNs.Valid {
			v := evictedAtNs.Int64
			row.EvictedAtNs = &v
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return out, nil
}

// Job kinds recorded by the API server.
const (
	JobPredict = "predict"
	JobRender  = "render"
	JobVideo   = "video"
)

// Job statuses.
const (
	JobOK     = "ok"
	JobFailed = "failed"
)

// JobRow records one unit of engine work: a prediction, a still render or an
// orbit video.
type JobRow struct {
	JobID       int64   `json:"job_id"`
	SessionID   string  `json:"session_id,omitempty"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	DurationMs  float64 `json:"duration_ms"`
	Detail      string  `json:"detail,omitempty"`
	CreatedAtNs int64   `json:"created_at_ns"`
}

// RecordJob appends one job record.
func (db *DB) RecordJob(job *JobRow) error {
	if job.CreatedAtNs == 0 {
		job.CreatedAtNs = time.Now().UnixNano()
	}

	_, err := db.Exec(
		`INSERT INTO jobs (session_id, kind, status, duration_ms, detail, created_at_ns)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(job.SessionID),
		job.Kind,
		job.Status,
		job.DurationMs,
		nullString(job.Detail),
		job.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// ListJobs retrieves up to limit job rows created at or after sinceNs,
// newest first. A limit of zero or less defaults to 500.
func (db *DB) ListJobs(sinceNs int64, limit int) ([]*JobRow, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := db.Query(
		`SELECT job_id, session_id, kind, status, duration_ms, detail, created_at_ns
		 FROM jobs WHERE created_at_ns >= ? ORDER BY created_at_ns DESC LIMIT ?`,
		sinceNs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*JobRow
	for rows.Next() {
		var job JobRow
		var sessionID, detail sql.NullString
		if err := rows.Scan(
			&job.JobID,
			&sessionID,
			&job.Kind,
			&job.Status,
			&job.DurationMs,
			&detail,
			&job.CreatedAtNs,
		); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		if sessionID.Valid {
			job.SessionID = sessionID.String
		}
		if detail.Valid {
			job.Detail = detail.String
		}
		out = append(out, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs rows: %w", err)
	}
	return out, nil
}

// JobKindStat aggregates job outcomes and latency per kind, for the report
// tool.
type JobKindStat struct {
	Kind          string  `json:"kind"`
	Total         int64   `json:"total"`
	Failed        int64   `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

// JobKindStats aggregates job rows created at or after sinceNs by kind.
func (db *DB) JobKindStats(sinceNs int64) ([]*JobKindStat, error) {
	rows, err := db.Query(
		`SELECT kind,
		        COUNT(*),
		        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		        AVG(duration_ms),
		        MAX(duration_ms)
		 FROM jobs WHERE created_at_ns >= ?
		 GROUP BY kind ORDER BY kind`,
		JobFailed, sinceNs,
	)
	if err != nil {
		return nil, fmt.Errorf("job kind stats: %w", err)
	}
	defer rows.Close()

	var out []*JobKindStat
	for rows.Next() {
		var stat JobKindStat
		if err := rows.Scan(&stat.Kind, &stat.Total, &stat.Failed, &stat.AvgDurationMs, &stat.MaxDurationMs); err != nil {
			return nil, fmt.Errorf("scan job stat row: %w", err)
		}
		out = append(out, &stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job kind stats rows: %w", err)
	}
	return out, nil
}

// AttachAdminRoutes mounts database debugging endpoints on the mux: a
// tailsql console for live SQL and a gzip backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://splatview.db", db.DB, &tailsql.DBOptions{
		Label: "Splatview DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

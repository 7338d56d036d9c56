package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/intelliform/internal/domain"
	"github.com/ashureev/intelliform/internal/shared"
)

// SQLiteStore implements Archive using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite opens (and creates if needed) the archive at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets readers proceed while the controller appends.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS transcript_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		view_id TEXT NOT NULL,
		session_id TEXT,
		message_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata_json TEXT,
		sent_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_view ON transcript_messages(view_id, id);
	CREATE INDEX IF NOT EXISTS idx_transcript_created ON transcript_messages(created_at);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		view_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		download_url TEXT NOT NULL,
		preview_url TEXT,
		previewable INTEGER DEFAULT 0,
		form_type TEXT,
		form_name TEXT,
		verified INTEGER DEFAULT 0,
		generated_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_view ON artifacts(view_id, id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessages appends msgs in one transaction.
func (s *SQLiteStore) SaveMessages(ctx context.Context, viewID, sessionID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return shared.RetryOnConflict(ctx, s.retry, "save messages", func(ctx context.Context) error {
		return s.saveMessagesOnce(ctx, viewID, sessionID, msgs)
	})
}

func (s *SQLiteStore) saveMessagesOnce(ctx context.Context, viewID, sessionID string, msgs []domain.Message) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Debug("rollback failed", "error", rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcript_messages
			(view_id, session_id, message_id, role, content, metadata_json, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Debug("failed to close statement", "error", closeErr)
		}
	}()

	now := time.Now().Unix()
	for _, m := range msgs {
		var meta any
		if len(m.Metadata) > 0 {
			b, mErr := json.Marshal(m.Metadata)
			if mErr != nil {
				return fmt.Errorf("encode metadata of message %d: %w", m.ID, mErr)
			}
			meta = string(b)
		}
		if _, err = stmt.ExecContext(ctx,
			viewID, nullable(sessionID), m.ID, string(m.Role), m.Content, meta,
			m.Timestamp.UnixMilli(), now,
		); err != nil {
			return fmt.Errorf("insert message %d: %w", m.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveArtifact records a generated document.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, viewID, sessionID string, a domain.GeneratedArtifact) error {
	query := `
		INSERT INTO artifacts
			(view_id, session_id, filename, download_url, preview_url, previewable,
			 form_type, form_name, verified, generated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, s.retry, "save artifact", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			viewID, sessionID, a.Filename, a.DownloadURL, nullable(a.PreviewURL), a.Previewable,
			nullable(a.FormType), nullable(a.FormName), a.Verified,
			a.GeneratedAt.Unix(), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		return nil
	})
}

// Transcript returns the archived messages of viewID in insertion order.
func (s *SQLiteStore) Transcript(ctx context.Context, viewID string) ([]TranscriptEntry, error) {
	query := `
		SELECT view_id, session_id, message_id, role, content, metadata_json, sent_at
		FROM transcript_messages WHERE view_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, viewID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var out []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		var sessionID, meta sql.NullString
		var role string
		var sentAt int64

		if err := rows.Scan(&e.ViewID, &sessionID, &e.Message.ID, &role, &e.Message.Content, &meta, &sentAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.SessionID = sessionID.String
		e.Message.Role = domain.Role(role)
		e.Message.Timestamp = time.UnixMilli(sentAt)
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Message.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of message %d: %w", e.Message.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return out, nil
}

// Artifacts returns the archived documents of viewID in insertion order.
func (s *SQLiteStore) Artifacts(ctx context.Context, viewID string) ([]ArtifactRecord, error) {
	query := `
		SELECT view_id, session_id, filename, download_url, preview_url, previewable,
		       form_type, form_name, verified, generated_at
		FROM artifacts WHERE view_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, viewID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close artifact rows", "error", closeErr)
		}
	}()

	var out []ArtifactRecord
	for rows.Next() {
		var r ArtifactRecord
		var previewURL, formType, formName sql.NullString
		var generatedAt int64

		if err := rows.Scan(
			&r.ViewID, &r.SessionID, &r.Artifact.Filename, &r.Artifact.DownloadURL,
			&previewURL, &r.Artifact.Previewable, &formType, &formName,
			&r.Artifact.Verified, &generatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		r.Artifact.PreviewURL = previewURL.String
		r.Artifact.FormType = formType.String
		r.Artifact.FormName = formName.String
		r.Artifact.GeneratedAt = time.Unix(generatedAt, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

// Cleanup removes rows archived more than retention ago.
func (s *SQLiteStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	var total int64
	for _, table := range []string{"transcript_messages", "artifacts"} {
		var n int64
		err := shared.RetryOnConflict(ctx, s.retry, "cleanup "+table, func(ctx context.Context) error {
			result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, threshold)
			if err != nil {
				return err
			}
			n, err = result.RowsAffected()
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

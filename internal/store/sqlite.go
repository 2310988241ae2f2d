package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets log reads proceed while a step is saving.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS learning_sessions (
		id TEXT PRIMARY KEY,
		external_student_id TEXT NOT NULL DEFAULT '',
		student_name TEXT NOT NULL DEFAULT '',
		topic_name TEXT NOT NULL DEFAULT '',
		current_stage TEXT NOT NULL,
		sub_topics_json TEXT NOT NULL DEFAULT '[]',
		current_sub_topic_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		last_question TEXT NOT NULL DEFAULT '',
		scores_json TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learning_sessions_student ON learning_sessions(external_student_id);

	CREATE TABLE IF NOT EXISTS interaction_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		flow_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interaction_logs_session ON interaction_logs(session_id, created_at);
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.LearningSession) error {
	subTopics, scores, err := encodeSessionLists(session)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO learning_sessions (
		id, external_student_id, student_name, topic_name, current_stage,
		sub_topics_json, current_sub_topic_index, status, last_question,
		scores_json, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	err = withRetry(ctx, "create session", func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			session.ID, session.ExternalStudentID, session.StudentName, session.TopicName,
			string(session.CurrentStage), subTopics, session.CurrentSubTopicIndex,
			string(session.Status), session.Metadata.LastQuestion, scores,
			session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.Version = 1
	return nil
}

// GetSession loads a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.LearningSession, error) {
	query := `
		SELECT id, external_student_id, student_name, topic_name, current_stage,
		       sub_topics_json, current_sub_topic_index, status, last_question,
		       scores_json, version, created_at, updated_at
		FROM learning_sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var session domain.LearningSession
	var stage, status, subTopicsJSON, scoresJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.ID, &session.ExternalStudentID, &session.StudentName, &session.TopicName, &stage,
		&subTopicsJSON, &session.CurrentSubTopicIndex, &status, &session.Metadata.LastQuestion,
		&scoresJSON, &session.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CurrentStage = domain.Stage(stage)
	session.Status = domain.Status(status)
	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	session.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if err := json.Unmarshal([]byte(subTopicsJSON), &session.SubTopics); err != nil {
		return nil, fmt.Errorf("decode sub topics: %w", err)
	}
	if err := json.Unmarshal([]byte(scoresJSON), &session.Metadata.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if session.SubTopics == nil {
		session.SubTopics = []string{}
	}
	if session.Metadata.Scores == nil {
		session.Metadata.Scores = []int{}
	}

	return &session, nil
}

// SaveSession persists every field of the session using optimistic locking on version.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.LearningSession) error {
	subTopics, scores, err := encodeSessionLists(session)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
	UPDATE learning_sessions SET
		external_student_id = ?, student_name = ?, topic_name = ?, current_stage = ?,
		sub_topics_json = ?, current_sub_topic_index = ?, status = ?, last_question = ?,
		scores_json = ?, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`

	var rows int64
	err = withRetry(ctx, "save session", func() error {
		result, execErr := s.db.ExecContext(ctx, query,
			session.ExternalStudentID, session.StudentName, session.TopicName, string(session.CurrentStage),
			subTopics, session.CurrentSubTopicIndex, string(session.Status), session.Metadata.LastQuestion,
			scores, now.UnixMilli(),
			session.ID, session.Version,
		)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if rows == 0 {
		var exists int
		lookupErr := s.db.QueryRowContext(ctx, `SELECT 1 FROM learning_sessions WHERE id = ?`, session.ID).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		if lookupErr != nil {
			return fmt.Errorf("check session existence: %w", lookupErr)
		}
		slog.Warn("SaveSession affected 0 rows", "session_id", session.ID, "expected_version", session.Version)
		return ErrVersionConflict
	}

	session.Version++
	session.UpdatedAt = now
	return nil
}

// InsertLog appends an interaction log entry.
func (s *SQLiteStore) InsertLog(ctx context.Context, entry *domain.InteractionLog) error {
	query := `
	INSERT INTO interaction_logs (id, session_id, type, prompt, response, model, flow_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err := withRetry(ctx, "insert log", func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			entry.ID, entry.SessionID, string(entry.Type), entry.Prompt, entry.Response,
			entry.Model, entry.FlowID, entry.CreatedAt.UnixMilli(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert interaction log: %w", err)
	}
	return nil
}

// ListLogs returns a session's log entries ordered by creation time ascending.
func (s *SQLiteStore) ListLogs(ctx context.Context, sessionID string) ([]domain.InteractionLog, error) {
	query := `
		SELECT id, session_id, type, prompt, response, model, flow_id, created_at
		FROM interaction_logs WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interaction logs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close interaction log rows", "error", closeErr)
		}
	}()

	logs := []domain.InteractionLog{}
	for rows.Next() {
		var entry domain.InteractionLog
		var logType string
		var createdAt int64
		if err := rows.Scan(
			&entry.ID, &entry.SessionID, &logType, &entry.Prompt, &entry.Response,
			&entry.Model, &entry.FlowID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan interaction log row: %w", err)
		}
		entry.Type = domain.LogType(logType)
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction logs: %w", err)
	}

	return logs, nil
}

func encodeSessionLists(session *domain.LearningSession) (string, string, error) {
	subTopics := session.SubTopics
	if subTopics == nil {
		subTopics = []string{}
	}
	scores := session.Metadata.Scores
	if scores == nil {
		scores = []int{}
	}
	subTopicsJSON, err := json.Marshal(subTopics)
	if err != nil {
		return "", "", fmt.Errorf("encode sub topics: %w", err)
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return "", "", fmt.Errorf("encode scores: %w", err)
	}
	return string(subTopicsJSON), string(scoresJSON), nil
}

package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "modernc.org/sqlite"

	sagaerr "sagaforge/errors"
	"sagaforge/message"
)

// SQLiteLog is the document-store backend (§6.1): one row per saga holding
// its entire serialized message list. The UNIQUE constraint on saga_id gives
// startSaga its AlreadyExists semantics for free; the index on
// parent_saga_id backs getChildSagaIds without scanning every row.
type SQLiteLog struct {
	db *sql.DB
}

// SQLiteConfig is the typed configuration the embedding application
// constructs; there is no env/file loading inside this package.
type SQLiteConfig struct {
	// DSN is passed to sql.Open("sqlite", DSN). Use "file::memory:?cache=shared"
	// for tests, a file path for a durable store.
	DSN string
	// DB, if set, is used instead of opening a new connection from DSN.
	DB *sql.DB
}

// NewSQLiteLog opens (or reuses) a connection and ensures the schema exists.
func NewSQLiteLog(ctx context.Context, cfg SQLiteConfig) (*SQLiteLog, error) {
	db := cfg.DB
	if db == nil {
		opened, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, sagaerr.NewPersistenceFailure("", err)
		}
		db = opened
	}

	const schema = `
CREATE TABLE IF NOT EXISTS sagas (
	saga_id        TEXT PRIMARY KEY,
	parent_saga_id TEXT NOT NULL DEFAULT '',
	messages       TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sagas_parent_saga_id ON sagas(parent_saga_id);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, sagaerr.NewPersistenceFailure("", err)
	}

	return &SQLiteLog{db: db}, nil
}

func (s *SQLiteLog) StartSaga(ctx context.Context, sagaID string, job any, parentSagaID, parentTaskID string) (message.Message, error) {
	msg := message.NewStartSaga(sagaID, job, parentSagaID, parentTaskID)

	payload, err := json.Marshal([]message.Message{msg})
	if err != nil {
		return message.Message{}, sagaerr.NewPersistenceFailure(sagaID, err)
	}

	now := msg.Timestamp.UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sagas (saga_id, parent_saga_id, messages, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sagaID, parentSagaID, string(payload), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return message.Message{}, sagaerr.NewAlreadyExists(sagaID)
		}
		return message.Message{}, sagaerr.NewPersistenceFailure(sagaID, err)
	}
	return msg, nil
}

// LogMessage appends within a transaction: read-modify-write the serialized
// list, relying on SQLite's transaction isolation to make the append atomic
// against concurrent writers on the same saga_id.
func (s *SQLiteLog) LogMessage(ctx context.Context, msg message.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT messages FROM sagas WHERE saga_id = ?`, msg.SagaID).Scan(&raw)
	if err == sql.ErrNoRows {
		return sagaerr.NewNotFound(msg.SagaID)
	}
	if err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}

	var seq []message.Message
	if err := json.Unmarshal([]byte(raw), &seq); err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}
	seq = append(seq, msg)

	payload, err := json.Marshal(seq)
	if err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE sagas SET messages = ?, updated_at = ? WHERE saga_id = ?`,
		string(payload), msg.Timestamp.UnixNano(), msg.SagaID)
	if err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}

	if err := tx.Commit(); err != nil {
		return sagaerr.NewPersistenceFailure(msg.SagaID, err)
	}
	return nil
}

func (s *SQLiteLog) GetMessages(ctx context.Context, sagaID string) ([]message.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT messages FROM sagas WHERE saga_id = ?`, sagaID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, sagaerr.NewNotFound(sagaID)
	}
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure(sagaID, err)
	}

	var seq []message.Message
	if err := json.Unmarshal([]byte(raw), &seq); err != nil {
		return nil, sagaerr.NewPersistenceFailure(sagaID, err)
	}
	return seq, nil
}

func (s *SQLiteLog) GetActiveSagaIds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT saga_id FROM sagas`)
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure("", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sagaerr.NewPersistenceFailure("", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteLog) GetChildSagaIds(ctx context.Context, parentSagaID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT saga_id FROM sagas WHERE parent_saga_id = ?`, parentSagaID)
	if err != nil {
		return nil, sagaerr.NewPersistenceFailure(parentSagaID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sagaerr.NewPersistenceFailure(parentSagaID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteLog) DeleteSaga(ctx context.Context, sagaID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sagas WHERE saga_id = ?`, sagaID)
	if err != nil {
		return sagaerr.NewPersistenceFailure(sagaID, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteLog) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}

var _ Log = (*SQLiteLog)(nil)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if isFilePath(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func isFilePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			user TEXT,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_messages (
			cache_key TEXT NOT NULL,
			campaign_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			correlation_id TEXT,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (cache_key, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_campaign ON transcript_messages(campaign_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Outgoing message status arrived after the first release.
	if err := s.ensureColumn("transcript_messages", "status", "ALTER TABLE transcript_messages ADD COLUMN status TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession replaces the stored session.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	if !session.Valid() {
		return fmt.Errorf("save session: token is required")
	}
	var user sql.NullString
	if session.User != nil {
		data, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		user = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, token, user, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET token = excluded.token, user = excluded.user, updated_at = excluded.updated_at`,
		session.Token, user, time.Now().UTC())
	return err
}

// LoadSession returns the stored session, or nil when signed out.
func (s *SQLiteStore) LoadSession(ctx context.Context) (*domain.Session, error) {
	var session domain.Session
	var user sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT token, user FROM session WHERE id = 1`).Scan(&session.Token, &user)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if user.Valid && user.String != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(user.String), &u); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		session.User = &u
	}
	return &session, nil
}

// ClearSession removes the stored session.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	return err
}

// SaveTranscript replaces the cached transcript for a campaign.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, campaignID string, messages []domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	key := TranscriptKey(campaignID)
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_messages WHERE cache_key = ?`, key); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_messages (cache_key, campaign_id, position, message_id, role, content, created_at, correlation_id, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, m := range messages {
		if _, err := stmt.ExecContext(ctx, key, campaignID, i, m.ID, m.Role, m.Content, m.CreatedAt,
			nullString(m.CorrelationID), nullString(string(m.Status)), now); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadTranscript returns the cached transcript in display order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, campaignID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, created_at, campaign_id, correlation_id, status
		 FROM transcript_messages WHERE cache_key = ? ORDER BY position ASC`,
		TranscriptKey(campaignID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var correlationID, status sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt, &msg.CampaignID, &correlationID, &status); err != nil {
			return nil, err
		}
		if correlationID.Valid {
			msg.CorrelationID = correlationID.String
		}
		if status.Valid {
			msg.Status = domain.MessageStatus(status.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteTranscript drops the cached transcript for a campaign.
func (s *SQLiteStore) DeleteTranscript(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript_messages WHERE cache_key = ?`, TranscriptKey(campaignID))
	return err
}

// ListTranscripts summarizes every cached transcript.
func (s *SQLiteStore) ListTranscripts(ctx context.Context) ([]TranscriptInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, COUNT(*), MAX(updated_at) FROM transcript_messages
		 GROUP BY campaign_id ORDER BY campaign_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []TranscriptInfo
	for rows.Next() {
		var info TranscriptInfo
		var updated sql.NullString
		if err := rows.Scan(&info.CampaignID, &info.MessageCount, &updated); err != nil {
			return nil, err
		}
		if updated.Valid {
			info.UpdatedAt = parseSQLiteTime(updated.String)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// MAX() loses the column's declared type, so go-sqlite3 hands back text.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Package store provides storage backends for sindico.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sindicoapp/sindico/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// SaveFlowState stores or updates the guided flow session for a user/assistant pair.
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	valuesJSON, err := encodeValues(state.Values)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState JSON marshal failed", "error", err, "userID", state.UserID)
		return err
	}
	query := `
		INSERT OR REPLACE INTO flow_states (user_id, assistant_id, doc_type, step_index, values_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, state.UserID, state.AssistantID, string(state.Type),
		state.StepIndex, valuesJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "userID", state.UserID, "assistantID", state.AssistantID)
		return err
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "userID", state.UserID, "assistantID", state.AssistantID, "step", state.StepIndex)
	return nil
}

// GetFlowState retrieves the guided flow session for a user/assistant pair.
func (s *SQLiteStore) GetFlowState(userID, assistantID string) (*models.FlowState, error) {
	query := `SELECT user_id, assistant_id, doc_type, step_index, values_json, created_at, updated_at
			  FROM flow_states WHERE user_id = ? AND assistant_id = ?`
	row := s.db.QueryRow(query, userID, assistantID)
	state, err := scanFlowState(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetFlowState not found", "userID", userID, "assistantID", assistantID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState failed", "error", err, "userID", userID, "assistantID", assistantID)
		return nil, err
	}
	return state, nil
}

// DeleteFlowState removes the guided flow session for a user/assistant pair.
func (s *SQLiteStore) DeleteFlowState(userID, assistantID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE user_id = ? AND assistant_id = ?`, userID, assistantID)
	if err != nil {
		slog.Error("SQLiteStore DeleteFlowState failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	slog.Debug("SQLiteStore DeleteFlowState succeeded", "userID", userID, "assistantID", assistantID)
	return nil
}

// AppendMessage records a chat message and enforces the conversation cache limits.
func (s *SQLiteStore) AppendMessage(userID, assistantID, assistantName string, msg models.ChatMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore AppendMessage begin failed", "error", err)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (user_id, assistant_id, assistant_name, last_update)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, assistant_id) DO UPDATE SET
			assistant_name = excluded.assistant_name,
			last_update = excluded.last_update`,
		userID, assistantID, assistantName, msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage upsert conversation failed", "error", err, "userID", userID)
		return err
	}

	_, err = tx.Exec(`INSERT INTO messages (user_id, assistant_id, body, is_user, sent_at) VALUES (?, ?, ?, ?, ?)`,
		userID, assistantID, msg.Text, msg.IsUser, msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage insert failed", "error", err, "userID", userID)
		return err
	}

	// Keep only the newest messages within the per-conversation cap.
	_, err = tx.Exec(`
		DELETE FROM messages WHERE user_id = ? AND assistant_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE user_id = ? AND assistant_id = ?
			ORDER BY id DESC LIMIT ?)`,
		userID, assistantID, userID, assistantID, models.MaxMessagesPerConversation)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage trim failed", "error", err, "userID", userID)
		return err
	}

	// Evict the user's stalest conversations beyond the cache limit.
	rows, err := tx.Query(`
		SELECT assistant_id FROM conversations WHERE user_id = ?
		ORDER BY last_update DESC LIMIT -1 OFFSET ?`,
		userID, models.MaxConversations)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage eviction query failed", "error", err, "userID", userID)
		return err
	}
	var evicted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		evicted = append(evicted, id)
	}
	rows.Close()
	for _, id := range evicted {
		if _, err := tx.Exec(`DELETE FROM conversations WHERE user_id = ? AND assistant_id = ?`, userID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE user_id = ? AND assistant_id = ?`, userID, id); err != nil {
			return err
		}
		slog.Debug("SQLiteStore AppendMessage evicted stale conversation", "userID", userID, "assistantID", id)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore AppendMessage commit failed", "error", err, "userID", userID)
		return err
	}
	return nil
}

// GetConversation retrieves the cached conversation with an assistant, or nil if absent.
func (s *SQLiteStore) GetConversation(userID, assistantID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRow(`SELECT user_id, assistant_id, assistant_name, last_update
		FROM conversations WHERE user_id = ? AND assistant_id = ?`, userID, assistantID).Scan(
		&conv.UserID, &conv.AssistantID, &conv.AssistantName, &conv.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "userID", userID, "assistantID", assistantID)
		return nil, err
	}

	rows, err := s.db.Query(`SELECT body, is_user, sent_at FROM messages
		WHERE user_id = ? AND assistant_id = ? ORDER BY id`, userID, assistantID)
	if err != nil {
		slog.Error("SQLiteStore GetConversation messages query failed", "error", err, "userID", userID)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Text, &m.IsUser, &m.Timestamp); err != nil {
			slog.Error("SQLiteStore GetConversation scan failed", "error", err)
			return nil, err
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations lists a user's cached conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(userID string) ([]models.Conversation, error) {
	rows, err := s.db.Query(`SELECT user_id, assistant_id, assistant_name, last_update
		FROM conversations WHERE user_id = ? ORDER BY last_update DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListConversations query failed", "error", err, "userID", userID)
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.UserID, &c.AssistantID, &c.AssistantName, &c.LastUpdate); err != nil {
			slog.Error("SQLiteStore ListConversations scan failed", "error", err)
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore ListConversations succeeded", "userID", userID, "count", len(convs))
	return convs, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(userID, assistantID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE user_id = ? AND assistant_id = ?`, userID, assistantID); err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM messages WHERE user_id = ? AND assistant_id = ?`, userID, assistantID); err != nil {
		slog.Error("SQLiteStore DeleteConversation messages failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// SaveAssistant stores or updates a mirrored assistant record.
func (s *SQLiteStore) SaveAssistant(a models.Assistant) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO assistants (id, name, model, instructions, synced_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Model, a.Instructions, a.SyncedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAssistant failed", "error", err, "id", a.ID)
		return err
	}
	slog.Debug("SQLiteStore SaveAssistant succeeded", "id", a.ID, "name", a.Name)
	return nil
}

// GetAssistant retrieves one mirrored assistant, or nil if absent.
func (s *SQLiteStore) GetAssistant(id string) (*models.Assistant, error) {
	var a models.Assistant
	err := s.db.QueryRow(`SELECT id, name, model, instructions, synced_at FROM assistants WHERE id = ?`, id).Scan(
		&a.ID, &a.Name, &a.Model, &a.Instructions, &a.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAssistant failed", "error", err, "id", id)
		return nil, err
	}
	return &a, nil
}

// ListAssistants pages through mirrored assistants, optionally filtered by a
// case-insensitive name substring. Returns the page and the filtered total.
func (s *SQLiteStore) ListAssistants(limit, offset int, search string) ([]models.Assistant, int, error) {
	limit, offset = normalizePage(limit, offset)
	pattern := likePattern(search)

	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assistants WHERE name LIKE ?`, pattern).Scan(&total)
	if err != nil {
		slog.Error("SQLiteStore ListAssistants count failed", "error", err)
		return nil, 0, err
	}

	rows, err := s.db.Query(`SELECT id, name, model, instructions, synced_at FROM assistants
		WHERE name LIKE ? ORDER BY name LIMIT ? OFFSET ?`, pattern, limit, offset)
	if err != nil {
		slog.Error("SQLiteStore ListAssistants query failed", "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	var assistants []models.Assistant
	for rows.Next() {
		var a models.Assistant
		if err := rows.Scan(&a.ID, &a.Name, &a.Model, &a.Instructions, &a.SyncedAt); err != nil {
			slog.Error("SQLiteStore ListAssistants scan failed", "error", err)
			return nil, 0, err
		}
		assistants = append(assistants, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return assistants, total, nil
}

// DeleteAssistant removes a mirrored assistant record.
func (s *SQLiteStore) DeleteAssistant(id string) error {
	_, err := s.db.Exec(`DELETE FROM assistants WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteAssistant failed", "error", err, "id", id)
		return err
	}
	return nil
}

// SaveDocument stores a generated document record.
func (s *SQLiteStore) SaveDocument(doc models.GeneratedDocument) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO documents (id, doc_type, user_id, assistant_id, body, doc_date, doc_value, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Type), doc.UserID, doc.AssistantID, doc.Body,
		doc.Date, doc.Value, doc.Description, doc.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveDocument failed", "error", err, "id", doc.ID)
		return err
	}
	slog.Debug("SQLiteStore SaveDocument succeeded", "id", doc.ID, "type", doc.Type)
	return nil
}

// GetDocument retrieves one generated document, or nil if absent.
func (s *SQLiteStore) GetDocument(id string) (*models.GeneratedDocument, error) {
	var d models.GeneratedDocument
	var docType string
	err := s.db.QueryRow(`SELECT id, doc_type, user_id, assistant_id, body, doc_date, doc_value, description, created_at
		FROM documents WHERE id = ?`, id).Scan(
		&d.ID, &docType, &d.UserID, &d.AssistantID, &d.Body, &d.Date, &d.Value, &d.Description, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDocument failed", "error", err, "id", id)
		return nil, err
	}
	d.Type = models.DocumentType(docType)
	return &d, nil
}

// ListDocuments pages through a user's generated documents, newest first,
// optionally filtered by a description substring.
func (s *SQLiteStore) ListDocuments(userID string, limit, offset int, search string) ([]models.GeneratedDocument, int, error) {
	limit, offset = normalizePage(limit, offset)
	pattern := likePattern(search)

	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE user_id = ? AND description LIKE ?`,
		userID, pattern).Scan(&total)
	if err != nil {
		slog.Error("SQLiteStore ListDocuments count failed", "error", err, "userID", userID)
		return nil, 0, err
	}

	rows, err := s.db.Query(`SELECT id, doc_type, user_id, assistant_id, body, doc_date, doc_value, description, created_at
		FROM documents WHERE user_id = ? AND description LIKE ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, pattern, limit, offset)
	if err != nil {
		slog.Error("SQLiteStore ListDocuments query failed", "error", err, "userID", userID)
		return nil, 0, err
	}
	defer rows.Close()

	var docs []models.GeneratedDocument
	for rows.Next() {
		var d models.GeneratedDocument
		var docType string
		if err := rows.Scan(&d.ID, &docType, &d.UserID, &d.AssistantID, &d.Body, &d.Date, &d.Value, &d.Description, &d.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListDocuments scan failed", "error", err)
			return nil, 0, err
		}
		d.Type = models.DocumentType(docType)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// GetThreadID retrieves the provider thread bound to a user/assistant pair.
func (s *SQLiteStore) GetThreadID(userID, assistantID string) (string, error) {
	var threadID string
	err := s.db.QueryRow(`SELECT thread_id FROM threads WHERE user_id = ? AND assistant_id = ?`,
		userID, assistantID).Scan(&threadID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetThreadID failed", "error", err, "userID", userID, "assistantID", assistantID)
		return "", err
	}
	return threadID, nil
}

// SaveThreadID binds a provider thread to a user/assistant pair.
func (s *SQLiteStore) SaveThreadID(userID, assistantID, threadID string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO threads (user_id, assistant_id, thread_id) VALUES (?, ?, ?)`,
		userID, assistantID, threadID)
	if err != nil {
		slog.Error("SQLiteStore SaveThreadID failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// DeleteThreadID clears the thread binding for a user/assistant pair.
func (s *SQLiteStore) DeleteThreadID(userID, assistantID string) error {
	_, err := s.db.Exec(`DELETE FROM threads WHERE user_id = ? AND assistant_id = ?`, userID, assistantID)
	if err != nil {
		slog.Error("SQLiteStore DeleteThreadID failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// GetConfig retrieves a system configuration value, or "" if unset.
func (s *SQLiteStore) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConfig failed", "error", err, "key", key)
		return "", err
	}
	return value, nil
}

// SetConfig stores a system configuration value.
func (s *SQLiteStore) SetConfig(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO system_config (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		slog.Error("SQLiteStore SetConfig failed", "error", err, "key", key)
		return err
	}
	return nil
}

func encodeValues(values map[string]string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	jsonBytes, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

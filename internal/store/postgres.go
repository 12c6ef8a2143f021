// Package store provides storage backends for sindico.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/sindicoapp/sindico/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening PostgreSQL database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}

// SaveFlowState stores or updates the guided flow session for a user/assistant pair.
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	valuesJSON, err := encodeValues(state.Values)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState JSON marshal failed", "error", err, "userID", state.UserID)
		return err
	}
	query := `
		INSERT INTO flow_states (user_id, assistant_id, doc_type, step_index, values_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, assistant_id) DO UPDATE SET
			doc_type = EXCLUDED.doc_type,
			step_index = EXCLUDED.step_index,
			values_json = EXCLUDED.values_json,
			updated_at = EXCLUDED.updated_at`
	_, err = s.db.Exec(query, state.UserID, state.AssistantID, string(state.Type),
		state.StepIndex, valuesJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "userID", state.UserID, "assistantID", state.AssistantID)
		return err
	}
	return nil
}

// GetFlowState retrieves the guided flow session for a user/assistant pair.
func (s *PostgresStore) GetFlowState(userID, assistantID string) (*models.FlowState, error) {
	query := `SELECT user_id, assistant_id, doc_type, step_index, values_json, created_at, updated_at
			  FROM flow_states WHERE user_id = $1 AND assistant_id = $2`
	row := s.db.QueryRow(query, userID, assistantID)
	state, err := scanFlowState(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState failed", "error", err, "userID", userID, "assistantID", assistantID)
		return nil, err
	}
	return state, nil
}

// DeleteFlowState removes the guided flow session for a user/assistant pair.
func (s *PostgresStore) DeleteFlowState(userID, assistantID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE user_id = $1 AND assistant_id = $2`, userID, assistantID)
	if err != nil {
		slog.Error("PostgresStore DeleteFlowState failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// AppendMessage records a chat message and enforces the conversation cache limits.
func (s *PostgresStore) AppendMessage(userID, assistantID, assistantName string, msg models.ChatMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore AppendMessage begin failed", "error", err)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (user_id, assistant_id, assistant_name, last_update)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, assistant_id) DO UPDATE SET
			assistant_name = EXCLUDED.assistant_name,
			last_update = EXCLUDED.last_update`,
		userID, assistantID, assistantName, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AppendMessage upsert conversation failed", "error", err, "userID", userID)
		return err
	}

	_, err = tx.Exec(`INSERT INTO messages (user_id, assistant_id, body, is_user, sent_at) VALUES ($1, $2, $3, $4, $5)`,
		userID, assistantID, msg.Text, msg.IsUser, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AppendMessage insert failed", "error", err, "userID", userID)
		return err
	}

	// Keep only the newest messages within the per-conversation cap.
	_, err = tx.Exec(`
		DELETE FROM messages WHERE user_id = $1 AND assistant_id = $2 AND id NOT IN (
			SELECT id FROM messages WHERE user_id = $1 AND assistant_id = $2
			ORDER BY id DESC LIMIT $3)`,
		userID, assistantID, models.MaxMessagesPerConversation)
	if err != nil {
		slog.Error("PostgresStore AppendMessage trim failed", "error", err, "userID", userID)
		return err
	}

	// Evict the user's stalest conversations beyond the cache limit.
	rows, err := tx.Query(`
		SELECT assistant_id FROM conversations WHERE user_id = $1
		ORDER BY last_update DESC OFFSET $2`,
		userID, models.MaxConversations)
	if err != nil {
		slog.Error("PostgresStore AppendMessage eviction query failed", "error", err, "userID", userID)
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
		if _, err := tx.Exec(`DELETE FROM conversations WHERE user_id = $1 AND assistant_id = $2`, userID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE user_id = $1 AND assistant_id = $2`, userID, id); err != nil {
			return err
		}
		slog.Debug("PostgresStore AppendMessage evicted stale conversation", "userID", userID, "assistantID", id)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore AppendMessage commit failed", "error", err, "userID", userID)
		return err
	}
	return nil
}

// GetConversation retrieves the cached conversation with an assistant, or nil if absent.
func (s *PostgresStore) GetConversation(userID, assistantID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRow(`SELECT user_id, assistant_id, assistant_name, last_update
		FROM conversations WHERE user_id = $1 AND assistant_id = $2`, userID, assistantID).Scan(
		&conv.UserID, &conv.AssistantID, &conv.AssistantName, &conv.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "userID", userID, "assistantID", assistantID)
		return nil, err
	}

	rows, err := s.db.Query(`SELECT body, is_user, sent_at FROM messages
		WHERE user_id = $1 AND assistant_id = $2 ORDER BY id`, userID, assistantID)
	if err != nil {
		slog.Error("PostgresStore GetConversation messages query failed", "error", err, "userID", userID)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Text, &m.IsUser, &m.Timestamp); err != nil {
			slog.Error("PostgresStore GetConversation scan failed", "error", err)
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
func (s *PostgresStore) ListConversations(userID string) ([]models.Conversation, error) {
	rows, err := s.db.Query(`SELECT user_id, assistant_id, assistant_name, last_update
		FROM conversations WHERE user_id = $1 ORDER BY last_update DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListConversations query failed", "error", err, "userID", userID)
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.UserID, &c.AssistantID, &c.AssistantName, &c.LastUpdate); err != nil {
			slog.Error("PostgresStore ListConversations scan failed", "error", err)
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *PostgresStore) DeleteConversation(userID, assistantID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE user_id = $1 AND assistant_id = $2`, userID, assistantID); err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM messages WHERE user_id = $1 AND assistant_id = $2`, userID, assistantID); err != nil {
		slog.Error("PostgresStore DeleteConversation messages failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// SaveAssistant stores or updates a mirrored assistant record.
func (s *PostgresStore) SaveAssistant(a models.Assistant) error {
	_, err := s.db.Exec(`
		INSERT INTO assistants (id, name, model, instructions, synced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			model = EXCLUDED.model,
			instructions = EXCLUDED.instructions,
			synced_at = EXCLUDED.synced_at`,
		a.ID, a.Name, a.Model, a.Instructions, a.SyncedAt)
	if err != nil {
		slog.Error("PostgresStore SaveAssistant failed", "error", err, "id", a.ID)
		return err
	}
	return nil
}

// GetAssistant retrieves one mirrored assistant, or nil if absent.
func (s *PostgresStore) GetAssistant(id string) (*models.Assistant, error) {
	var a models.Assistant
	err := s.db.QueryRow(`SELECT id, name, model, instructions, synced_at FROM assistants WHERE id = $1`, id).Scan(
		&a.ID, &a.Name, &a.Model, &a.Instructions, &a.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAssistant failed", "error", err, "id", id)
		return nil, err
	}
	return &a, nil
}

// ListAssistants pages through mirrored assistants, optionally filtered by a
// case-insensitive name substring. Returns the page and the filtered total.
func (s *PostgresStore) ListAssistants(limit, offset int, search string) ([]models.Assistant, int, error) {
	limit, offset = normalizePage(limit, offset)
	pattern := likePattern(search)

	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assistants WHERE name ILIKE $1`, pattern).Scan(&total)
	if err != nil {
		slog.Error("PostgresStore ListAssistants count failed", "error", err)
		return nil, 0, err
	}

	rows, err := s.db.Query(`SELECT id, name, model, instructions, synced_at FROM assistants
		WHERE name ILIKE $1 ORDER BY name LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		slog.Error("PostgresStore ListAssistants query failed", "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	var assistants []models.Assistant
	for rows.Next() {
		var a models.Assistant
		if err := rows.Scan(&a.ID, &a.Name, &a.Model, &a.Instructions, &a.SyncedAt); err != nil {
			slog.Error("PostgresStore ListAssistants scan failed", "error", err)
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
func (s *PostgresStore) DeleteAssistant(id string) error {
	_, err := s.db.Exec(`DELETE FROM assistants WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteAssistant failed", "error", err, "id", id)
		return err
	}
	return nil
}

// SaveDocument stores a generated document record.
func (s *PostgresStore) SaveDocument(doc models.GeneratedDocument) error {
	_, err := s.db.Exec(`
		INSERT INTO documents (id, doc_type, user_id, assistant_id, body, doc_date, doc_value, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body`,
		doc.ID, string(doc.Type), doc.UserID, doc.AssistantID, doc.Body,
		doc.Date, doc.Value, doc.Description, doc.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveDocument failed", "error", err, "id", doc.ID)
		return err
	}
	return nil
}

// GetDocument retrieves one generated document, or nil if absent.
func (s *PostgresStore) GetDocument(id string) (*models.GeneratedDocument, error) {
	var d models.GeneratedDocument
	var docType string
	err := s.db.QueryRow(`SELECT id, doc_type, user_id, assistant_id, body, doc_date, doc_value, description, created_at
		FROM documents WHERE id = $1`, id).Scan(
		&d.ID, &docType, &d.UserID, &d.AssistantID, &d.Body, &d.Date, &d.Value, &d.Description, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDocument failed", "error", err, "id", id)
		return nil, err
	}
	d.Type = models.DocumentType(docType)
	return &d, nil
}

// ListDocuments pages through a user's generated documents, newest first,
// optionally filtered by a description substring.
func (s *PostgresStore) ListDocuments(userID string, limit, offset int, search string) ([]models.GeneratedDocument, int, error) {
	limit, offset = normalizePage(limit, offset)
	pattern := likePattern(search)

	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE user_id = $1 AND description ILIKE $2`,
		userID, pattern).Scan(&total)
	if err != nil {
		slog.Error("PostgresStore ListDocuments count failed", "error", err, "userID", userID)
		return nil, 0, err
	}

	rows, err := s.db.Query(`SELECT id, doc_type, user_id, assistant_id, body, doc_date, doc_value, description, created_at
		FROM documents WHERE user_id = $1 AND description ILIKE $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, userID, pattern, limit, offset)
	if err != nil {
		slog.Error("PostgresStore ListDocuments query failed", "error", err, "userID", userID)
		return nil, 0, err
	}
	defer rows.Close()

	var docs []models.GeneratedDocument
	for rows.Next() {
		var d models.GeneratedDocument
		var docType string
		if err := rows.Scan(&d.ID, &docType, &d.UserID, &d.AssistantID, &d.Body, &d.Date, &d.Value, &d.Description, &d.CreatedAt); err != nil {
			slog.Error("PostgresStore ListDocuments scan failed", "error", err)
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
func (s *PostgresStore) GetThreadID(userID, assistantID string) (string, error) {
	var threadID string
	err := s.db.QueryRow(`SELECT thread_id FROM threads WHERE user_id = $1 AND assistant_id = $2`,
		userID, assistantID).Scan(&threadID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresStore GetThreadID failed", "error", err, "userID", userID, "assistantID", assistantID)
		return "", err
	}
	return threadID, nil
}

// SaveThreadID binds a provider thread to a user/assistant pair.
func (s *PostgresStore) SaveThreadID(userID, assistantID, threadID string) error {
	_, err := s.db.Exec(`
		INSERT INTO threads (user_id, assistant_id, thread_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, assistant_id) DO UPDATE SET thread_id = EXCLUDED.thread_id`,
		userID, assistantID, threadID)
	if err != nil {
		slog.Error("PostgresStore SaveThreadID failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// DeleteThreadID clears the thread binding for a user/assistant pair.
func (s *PostgresStore) DeleteThreadID(userID, assistantID string) error {
	_, err := s.db.Exec(`DELETE FROM threads WHERE user_id = $1 AND assistant_id = $2`, userID, assistantID)
	if err != nil {
		slog.Error("PostgresStore DeleteThreadID failed", "error", err, "userID", userID, "assistantID", assistantID)
		return err
	}
	return nil
}

// GetConfig retrieves a system configuration value, or "" if unset.
func (s *PostgresStore) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConfig failed", "error", err, "key", key)
		return "", err
	}
	return value, nil
}

// SetConfig stores a system configuration value.
func (s *PostgresStore) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO system_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		slog.Error("PostgresStore SetConfig failed", "error", err, "key", key)
		return err
	}
	return nil
}

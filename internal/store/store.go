// Package store provides storage backends for sindico.
//
// It includes SQLite and PostgreSQL stores for persistent deployments and an
// in-memory store used by tests. All backends enforce the conversation cache
// limits: at most models.MaxConversations conversations per user and at most
// models.MaxMessagesPerConversation messages per conversation, dropping the
// oldest data first.
package store

import "github.com/sindicoapp/sindico/internal/models"

// Store defines the persistence operations shared by all backends.
type Store interface {
	// Guided flow sessions, keyed by (user, assistant). A missing state is
	// returned as (nil, nil).
	GetFlowState(userID, assistantID string) (*models.FlowState, error)
	SaveFlowState(state models.FlowState) error
	DeleteFlowState(userID, assistantID string) error

	// Conversation history cache. AppendMessage upserts the conversation,
	// advances its lastUpdate, trims the message list to the per-conversation
	// cap and evicts the user's stalest conversations beyond the cache limit.
	AppendMessage(userID, assistantID, assistantName string, msg models.ChatMessage) error
	GetConversation(userID, assistantID string) (*models.Conversation, error)
	ListConversations(userID string) ([]models.Conversation, error)
	DeleteConversation(userID, assistantID string) error

	// Local mirror of the assistant directory.
	SaveAssistant(assistant models.Assistant) error
	GetAssistant(id string) (*models.Assistant, error)
	ListAssistants(limit, offset int, search string) ([]models.Assistant, int, error)
	DeleteAssistant(id string) error

	// Generated document records.
	SaveDocument(doc models.GeneratedDocument) error
	GetDocument(id string) (*models.GeneratedDocument, error)
	ListDocuments(userID string, limit, offset int, search string) ([]models.GeneratedDocument, int, error)

	// Thread bindings tie a (user, assistant) pair to a provider thread so
	// follow-up chat turns share context. Missing binding returns ("", nil).
	GetThreadID(userID, assistantID string) (string, error)
	SaveThreadID(userID, assistantID, threadID string) error
	DeleteThreadID(userID, assistantID string) error

	// System configuration key/value pairs (API credential overrides and the
	// like). Missing key returns ("", nil).
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	Close() error
}

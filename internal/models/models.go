// Package models defines the core data structures shared across sindico modules.
//
// It includes document types, guided flow definitions, generation requests and the
// structured results extracted from assistant replies.
package models

import (
	"errors"
	"time"
)

// DocumentType identifies the kind of infraction document being produced.
type DocumentType string

const (
	// DocumentAdvertencia is a formal written warning.
	DocumentAdvertencia DocumentType = "advertencia"
	// DocumentMulta is a formal monetary fine.
	DocumentMulta DocumentType = "multa"
)

// IsValidDocumentType checks if the given document type is supported.
func IsValidDocumentType(dt DocumentType) bool {
	switch dt {
	case DocumentAdvertencia, DocumentMulta:
		return true
	default:
		return false
	}
}

// Title returns the document heading used in generated bodies.
func (dt DocumentType) Title() string {
	if dt == DocumentAdvertencia {
		return "ADVERTÊNCIA"
	}
	return "NOTIFICAÇÃO DE MULTA"
}

// Label returns the human-readable name of the document type.
func (dt DocumentType) Label() string {
	if dt == DocumentAdvertencia {
		return "Advertência"
	}
	return "Multa"
}

// StepKind defines how a guided flow step collects its value.
type StepKind string

const (
	// StepKindDate collects a calendar date.
	StepKindDate StepKind = "data"
	// StepKindText collects free text verbatim.
	StepKindText StepKind = "texto"
	// StepKindNumber collects a numeric value verbatim.
	StepKindNumber StepKind = "numero"
	// StepKindImages collects an optional set of evidence images.
	StepKindImages StepKind = "imagens"
)

// Validation constants shared by the flow engine and the upload service.
const (
	// MaxConversations is the maximum number of conversations retained per user.
	MaxConversations = 5
	// MaxMessagesPerConversation is the message cap within a single conversation.
	MaxMessagesPerConversation = 100
	// DefaultMaxImages is the default image count allowed on an image step.
	DefaultMaxImages = 3
	// MaxImageBytes is the per-file upload size limit.
	MaxImageBytes = 5 * 1024 * 1024
)

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID         = errors.New("user id cannot be empty")
	ErrEmptyAssistantID    = errors.New("assistant id cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrInvalidDocumentType = errors.New("invalid document type")
	ErrFlowNotActive       = errors.New("no guided flow is active")
	ErrFlowAlreadyActive   = errors.New("a guided flow is already active")
	ErrEmptyDate           = errors.New("date cannot be empty")
	ErrTooManyImages       = errors.New("too many images in batch")
	ErrImageTooLarge       = errors.New("image exceeds maximum size")
	ErrUnsupportedImage    = errors.New("unsupported image format")
)

// FlowStep is a single prompt in a guided flow definition.
type FlowStep struct {
	Prompt string   `json:"prompt" yaml:"prompt"`
	Field  string   `json:"field" yaml:"field"`
	Kind   StepKind `json:"kind" yaml:"kind"`
	Max    int      `json:"max,omitempty" yaml:"max,omitempty"` // image steps only
}

// FlowDefinition is an immutable wizard template for one document type.
type FlowDefinition struct {
	Type  DocumentType `json:"type" yaml:"type"`
	Name  string       `json:"name" yaml:"name"`
	Steps []FlowStep   `json:"steps" yaml:"steps"`
}

// Validate checks that a flow definition is internally consistent.
func (d *FlowDefinition) Validate() error {
	if !IsValidDocumentType(d.Type) {
		return ErrInvalidDocumentType
	}
	if len(d.Steps) == 0 {
		return errors.New("flow definition has no steps")
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Field == "" {
			return errors.New("flow step missing field key")
		}
		if seen[s.Field] {
			return errors.New("duplicate flow step field key: " + s.Field)
		}
		seen[s.Field] = true
	}
	return nil
}

// DocumentRequest carries the collected flow values to the generation pipeline.
type DocumentRequest struct {
	Type        DocumentType      `json:"tipo"`
	Data        map[string]string `json:"dados"`
	AssistantID string            `json:"assistant_id"`
	UserID      string            `json:"user_id"`
}

// Validate performs validation on a DocumentRequest.
func (r *DocumentRequest) Validate() error {
	if !IsValidDocumentType(r.Type) {
		return ErrInvalidDocumentType
	}
	if r.AssistantID == "" {
		return ErrEmptyAssistantID
	}
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// ParsedDocument is the structured summary extracted from an assistant reply that
// contains a generated document. It backs the action card shown after generation
// and is never persisted by the parser itself.
type ParsedDocument struct {
	Type        DocumentType `json:"tipo"`
	Date        string       `json:"data"`
	Value       string       `json:"valor,omitempty"` // fines only
	Description string       `json:"descricao"`
	LegalBasis  string       `json:"fundamentacao,omitempty"`
}

// GeneratedDocument is a finished document body persisted by the document store.
type GeneratedDocument struct {
	ID          string       `json:"id"`
	Type        DocumentType `json:"tipo"`
	UserID      string       `json:"user_id"`
	AssistantID string       `json:"assistant_id"`
	Body        string       `json:"corpo"`
	Date        string       `json:"data,omitempty"`
	Value       string       `json:"valor,omitempty"`
	Description string       `json:"descricao,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Assistant is a per-condominium configured generation identity mirrored from the
// upstream assistant directory.
type Assistant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	SyncedAt     time.Time `json:"synced_at"`
}

// ImageDescriptor describes one stored evidence image.
type ImageDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"nome"`
	Size        int64  `json:"tamanho"`
	ContentType string `json:"content_type"`
	Path        string `json:"path"`
}

// ImageSet is the stored reference produced by a confirmed image upload.
type ImageSet struct {
	DocumentID string            `json:"documento_id"`
	Images     []ImageDescriptor `json:"imagens"`
	Total      int               `json:"total"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

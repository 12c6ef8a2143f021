// Package models defines guided flow session state structures.
package models

import "time"

// FlowState is the mutable session of a guided flow for one user/assistant pair.
// At most one flow is active per pair; the state row is deleted when the flow
// completes or is abandoned.
type FlowState struct {
	UserID      string            `json:"user_id"`
	AssistantID string            `json:"assistant_id"`
	Type        DocumentType      `json:"tipo"`
	StepIndex   int               `json:"step_index"`
	Values      map[string]string `json:"values,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

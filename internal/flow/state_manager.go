package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sindicoapp/sindico/internal/models"
	"github.com/sindicoapp/sindico/internal/store"
)

// StateManager tracks the guided flow session of each (user, assistant) pair.
type StateManager interface {
	// Current returns the active session, or nil when no flow is running.
	Current(userID, assistantID string) (*models.FlowState, error)
	// Begin creates a session at step zero. It fails with
	// models.ErrFlowAlreadyActive when one already exists for the pair.
	Begin(userID, assistantID string, docType models.DocumentType) (*models.FlowState, error)
	// Advance stores a collected value and moves the session to the next step.
	Advance(state *models.FlowState, field, value string) error
	// Reset removes the session, if any.
	Reset(userID, assistantID string) error
}

// StoreBasedStateManager persists sessions through a store.Store, so flows
// survive restarts when a persistent backend is configured.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a state manager backed by the given store.
func NewStoreBasedStateManager(s store.Store) *StoreBasedStateManager {
	return &StoreBasedStateManager{store: s}
}

// Current retrieves the active session for a pair.
func (m *StoreBasedStateManager) Current(userID, assistantID string) (*models.FlowState, error) {
	slog.Debug("StateManager.Current: retrieving session", "userID", userID, "assistantID", assistantID)
	state, err := m.store.GetFlowState(userID, assistantID)
	if err != nil {
		return nil, fmt.Errorf("StateManager.Current: %w", err)
	}
	return state, nil
}

// Begin starts a new session at step zero.
func (m *StoreBasedStateManager) Begin(userID, assistantID string, docType models.DocumentType) (*models.FlowState, error) {
	slog.Debug("StateManager.Begin: starting session", "userID", userID, "assistantID", assistantID, "docType", docType)
	existing, err := m.store.GetFlowState(userID, assistantID)
	if err != nil {
		return nil, fmt.Errorf("StateManager.Begin: %w", err)
	}
	if existing != nil {
		return nil, models.ErrFlowAlreadyActive
	}

	now := time.Now()
	state := &models.FlowState{
		UserID:      userID,
		AssistantID: assistantID,
		Type:        docType,
		StepIndex:   0,
		Values:      make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.SaveFlowState(*state); err != nil {
		return nil, fmt.Errorf("StateManager.Begin: failed to save session: %w", err)
	}
	return state, nil
}

// Advance records a collected value and bumps the step index.
func (m *StoreBasedStateManager) Advance(state *models.FlowState, field, value string) error {
	slog.Debug("StateManager.Advance: storing value",
		"userID", state.UserID, "assistantID", state.AssistantID, "field", field, "step", state.StepIndex)
	if state.Values == nil {
		state.Values = make(map[string]string)
	}
	state.Values[field] = value
	state.StepIndex++
	state.UpdatedAt = time.Now()
	if err := m.store.SaveFlowState(*state); err != nil {
		return fmt.Errorf("StateManager.Advance: failed to save session: %w", err)
	}
	return nil
}

// Reset deletes the session for a pair.
func (m *StoreBasedStateManager) Reset(userID, assistantID string) error {
	slog.Debug("StateManager.Reset: clearing session", "userID", userID, "assistantID", assistantID)
	if err := m.store.DeleteFlowState(userID, assistantID); err != nil {
		return fmt.Errorf("StateManager.Reset: %w", err)
	}
	return nil
}

// Package store provides storage backends for sindico.
//
// This file implements an in-memory store used by tests and ephemeral runs.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/sindicoapp/sindico/internal/models"
)

type pairKey struct {
	userID      string
	assistantID string
}

// InMemoryStore keeps all state in process memory. It applies the same
// conversation cache limits as the persistent backends.
type InMemoryStore struct {
	mu            sync.RWMutex
	flowStates    map[pairKey]models.FlowState
	conversations map[pairKey]*models.Conversation
	assistants    map[string]models.Assistant
	documents     map[string]models.GeneratedDocument
	threads       map[pairKey]string
	config        map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flowStates:    make(map[pairKey]models.FlowState),
		conversations: make(map[pairKey]*models.Conversation),
		assistants:    make(map[string]models.Assistant),
		documents:     make(map[string]models.GeneratedDocument),
		threads:       make(map[pairKey]string),
		config:        make(map[string]string),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) GetFlowState(userID, assistantID string) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.flowStates[pairKey{userID, assistantID}]
	if !ok {
		return nil, nil
	}
	copied := state
	copied.Values = copyValues(state.Values)
	return &copied, nil
}

func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := state
	stored.Values = copyValues(state.Values)
	s.flowStates[pairKey{state.UserID, state.AssistantID}] = stored
	return nil
}

func (s *InMemoryStore) DeleteFlowState(userID, assistantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, pairKey{userID, assistantID})
	return nil
}

func (s *InMemoryStore) AppendMessage(userID, assistantID, assistantName string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{userID, assistantID}
	conv, ok := s.conversations[key]
	if !ok {
		conv = &models.Conversation{UserID: userID, AssistantID: assistantID}
		s.conversations[key] = conv
	}
	conv.AssistantName = assistantName
	conv.LastUpdate = msg.Timestamp
	conv.Messages = models.TrimMessages(append(conv.Messages, msg), models.MaxMessagesPerConversation)

	// Evict the user's stalest conversations beyond the cache limit.
	var mine []*models.Conversation
	for k, c := range s.conversations {
		if k.userID == userID {
			mine = append(mine, c)
		}
	}
	if len(mine) > models.MaxConversations {
		sort.Slice(mine, func(i, j int) bool {
			return mine[i].LastUpdate.After(mine[j].LastUpdate)
		})
		for _, stale := range mine[models.MaxConversations:] {
			delete(s.conversations, pairKey{stale.UserID, stale.AssistantID})
		}
	}
	return nil
}

func (s *InMemoryStore) GetConversation(userID, assistantID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[pairKey{userID, assistantID}]
	if !ok {
		return nil, nil
	}
	copied := *conv
	copied.Messages = append([]models.ChatMessage(nil), conv.Messages...)
	return &copied, nil
}

func (s *InMemoryStore) ListConversations(userID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var convs []models.Conversation
	for k, c := range s.conversations {
		if k.userID == userID {
			copied := *c
			copied.Messages = append([]models.ChatMessage(nil), c.Messages...)
			convs = append(convs, copied)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastUpdate.After(convs[j].LastUpdate)
	})
	return convs, nil
}

func (s *InMemoryStore) DeleteConversation(userID, assistantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, pairKey{userID, assistantID})
	return nil
}

func (s *InMemoryStore) SaveAssistant(a models.Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistants[a.ID] = a
	return nil
}

func (s *InMemoryStore) GetAssistant(id string) (*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assistants[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryStore) ListAssistants(limit, offset int, search string) ([]models.Assistant, int, error) {
	limit, offset = normalizePage(limit, offset)
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	var matched []models.Assistant
	for _, a := range s.assistants {
		if needle == "" || strings.Contains(strings.ToLower(a.Name), needle) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *InMemoryStore) DeleteAssistant(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assistants, id)
	return nil
}

func (s *InMemoryStore) SaveDocument(doc models.GeneratedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *InMemoryStore) GetDocument(id string) (*models.GeneratedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *InMemoryStore) ListDocuments(userID string, limit, offset int, search string) ([]models.GeneratedDocument, int, error) {
	limit, offset = normalizePage(limit, offset)
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	var matched []models.GeneratedDocument
	for _, d := range s.documents {
		if d.UserID != userID {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(d.Description), needle) {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *InMemoryStore) GetThreadID(userID, assistantID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[pairKey{userID, assistantID}], nil
}

func (s *InMemoryStore) SaveThreadID(userID, assistantID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[pairKey{userID, assistantID}] = threadID
	return nil
}

func (s *InMemoryStore) DeleteThreadID(userID, assistantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, pairKey{userID, assistantID})
	return nil
}

func (s *InMemoryStore) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config[key], nil
}

func (s *InMemoryStore) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func copyValues(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return copied
}

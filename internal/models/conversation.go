// Package models defines conversation history structures for the chat cache.
package models

import "time"

// ChatMessage is one message in a conversation history.
type ChatMessage struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the cached history with one assistant.
//
// Histories are capped at MaxMessagesPerConversation messages (oldest dropped
// first) and each user keeps at most MaxConversations conversations, evicting
// the one with the oldest LastUpdate when the limit is exceeded.
type Conversation struct {
	UserID        string        `json:"user_id"`
	AssistantID   string        `json:"assistant_id"`
	AssistantName string        `json:"assistant_name"`
	LastUpdate    time.Time     `json:"last_update"`
	Messages      []ChatMessage `json:"messages"`
}

// TrimMessages enforces the per-conversation message cap, keeping the most
// recent messages with their relative order preserved.
func TrimMessages(messages []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

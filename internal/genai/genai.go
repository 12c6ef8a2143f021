// Package genai provides document generation via the OpenAI API.
//
// It wraps assistant thread runs for the primary generation path and plain
// chat completions for the fallback path, plus read access to the assistant
// directory.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sindicoapp/sindico/internal/models"
)

// Defaults for run polling and the fallback completion model.
const (
	DefaultFallbackModel   = "gpt-4-turbo"
	DefaultMaxPollAttempts = 30
	DefaultPollInterval    = time.Second
	DefaultTemperature     = 0.7
)

// Error variables for better error handling and testability.
var (
	ErrNotConfigured = errors.New("openai api key not configured")
	ErrEmptyReply    = errors.New("assistant returned an empty reply")
	ErrRunFailed     = errors.New("assistant run did not complete")
	ErrRunTimeout    = errors.New("assistant run polling timed out")
)

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey          string
	FallbackModel   string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithFallbackModel sets the model used for fallback chat completions.
func WithFallbackModel(model string) Option {
	return func(o *Opts) { o.FallbackModel = model }
}

// WithPollInterval sets the delay between run status polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithMaxPollAttempts sets how many times a run is polled before timing out.
func WithMaxPollAttempts(n int) Option {
	return func(o *Opts) { o.MaxPollAttempts = n }
}

// ClientInterface defines the generation operations used by the flow engine,
// the document pipeline and the API handlers. Tests provide fakes.
type ClientInterface interface {
	// CreateThread opens a new conversation thread and returns its id.
	CreateThread(ctx context.Context) (string, error)
	// RunAssistant posts prompt to the thread, runs the assistant bound to
	// assistantID and returns the newest assistant reply text.
	RunAssistant(ctx context.Context, threadID, assistantID, prompt string) (string, error)
	// Complete performs a stateless chat completion.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64) (string, error)
	// GetAssistant fetches one assistant from the upstream directory.
	GetAssistant(ctx context.Context, id string) (*models.Assistant, error)
	// ListAssistants fetches the upstream assistant directory.
	ListAssistants(ctx context.Context) ([]models.Assistant, error)
	// FallbackModel reports the configured fallback completion model.
	FallbackModel() string
}

// Client implements ClientInterface against the OpenAI API.
type Client struct {
	client          openai.Client
	fallbackModel   string
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewClient initializes a new GenAI client. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		FallbackModel:   DefaultFallbackModel,
		PollInterval:    DefaultPollInterval,
		MaxPollAttempts: DefaultMaxPollAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI.NewClient: API key not set")
		return nil, ErrNotConfigured
	}
	slog.Debug("GenAI.NewClient: client initialized", "fallbackModel", cfg.FallbackModel, "maxPollAttempts", cfg.MaxPollAttempts)
	return &Client{
		client:          openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		fallbackModel:   cfg.FallbackModel,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
	}, nil
}

// FallbackModel reports the configured fallback completion model.
func (c *Client) FallbackModel() string {
	return c.fallbackModel
}

// CreateThread opens a new conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		slog.Error("GenAI.CreateThread: failed", "error", err)
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	slog.Debug("GenAI.CreateThread: thread created", "threadID", thread.ID)
	return thread.ID, nil
}

// RunAssistant posts the prompt to the thread, runs the assistant and returns
// the newest assistant reply. Polling is capped; unfinished runs time out.
func (c *Client) RunAssistant(ctx context.Context, threadID, assistantID, prompt string) (string, error) {
	_, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(prompt),
		},
	})
	if err != nil {
		slog.Error("GenAI.RunAssistant: failed to add message", "error", err, "threadID", threadID)
		return "", fmt.Errorf("failed to add message to thread: %w", err)
	}

	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		slog.Error("GenAI.RunAssistant: failed to create run", "error", err, "threadID", threadID, "assistantID", assistantID)
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	status := run.Status
	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		if status == openai.RunStatusCompleted {
			break
		}
		if status == openai.RunStatusFailed || status == openai.RunStatusCancelled || status == openai.RunStatusExpired {
			slog.Error("GenAI.RunAssistant: run ended without completing", "status", status, "runID", run.ID)
			return "", fmt.Errorf("%w: status %s", ErrRunFailed, status)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
		polled, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, run.ID)
		if err != nil {
			slog.Error("GenAI.RunAssistant: poll failed", "error", err, "runID", run.ID)
			return "", fmt.Errorf("failed to poll run: %w", err)
		}
		status = polled.Status
	}
	if status != openai.RunStatusCompleted {
		slog.Error("GenAI.RunAssistant: polling exhausted", "status", status, "runID", run.ID, "attempts", c.maxPollAttempts)
		return "", fmt.Errorf("%w after %d attempts", ErrRunTimeout, c.maxPollAttempts)
	}

	reply, err := c.latestAssistantReply(ctx, threadID)
	if err != nil {
		return "", err
	}
	slog.Debug("GenAI.RunAssistant: reply collected", "threadID", threadID, "length", len(reply))
	return reply, nil
}

// latestAssistantReply returns the text of the newest assistant message in the
// thread, concatenating its text segments.
func (c *Client) latestAssistantReply(ctx context.Context, threadID string) (string, error) {
	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{})
	if err != nil {
		slog.Error("GenAI.latestAssistantReply: list failed", "error", err, "threadID", threadID)
		return "", fmt.Errorf("failed to list thread messages: %w", err)
	}
	for _, msg := range page.Data {
		if msg.Role != "assistant" {
			continue
		}
		var b strings.Builder
		for _, part := range msg.Content {
			if part.Type == "text" {
				b.WriteString(part.Text.Value)
			}
		}
		reply := b.String()
		if strings.TrimSpace(reply) == "" {
			return "", ErrEmptyReply
		}
		return reply, nil
	}
	return "", ErrEmptyReply
}

// Complete performs a stateless chat completion.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64) (string, error) {
	if model == "" {
		model = c.fallbackModel
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		slog.Error("GenAI.Complete: completion failed", "error", err, "model", model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// GetAssistant fetches one assistant from the upstream directory.
func (c *Client) GetAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	assistant, err := c.client.Beta.Assistants.Get(ctx, id)
	if err != nil {
		slog.Error("GenAI.GetAssistant: failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to fetch assistant %s: %w", id, err)
	}
	return &models.Assistant{
		ID:           assistant.ID,
		Name:         assistant.Name,
		Model:        assistant.Model,
		Instructions: assistant.Instructions,
		SyncedAt:     time.Now(),
	}, nil
}

// ListAssistants fetches the upstream assistant directory.
func (c *Client) ListAssistants(ctx context.Context) ([]models.Assistant, error) {
	page, err := c.client.Beta.Assistants.List(ctx, openai.BetaAssistantListParams{
		Limit: openai.Int(100),
	})
	if err != nil {
		slog.Error("GenAI.ListAssistants: failed", "error", err)
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}
	now := time.Now()
	var assistants []models.Assistant
	for _, a := range page.Data {
		assistants = append(assistants, models.Assistant{
			ID:           a.ID,
			Name:         a.Name,
			Model:        a.Model,
			Instructions: a.Instructions,
			SyncedAt:     now,
		})
	}
	slog.Debug("GenAI.ListAssistants: directory fetched", "count", len(assistants))
	return assistants, nil
}

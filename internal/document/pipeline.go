package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sindicoapp/sindico/internal/genai"
	"github.com/sindicoapp/sindico/internal/models"
)

// ErrGenerationFailed is the terminal pipeline error, raised only after both
// the assistant path and the fallback completion failed.
var ErrGenerationFailed = errors.New("document generation failed")

// GenerationFailureMessage is the user-facing text for a terminal failure.
const GenerationFailureMessage = "Falha ao gerar o documento. Tente novamente mais tarde."

// GenerateRequest carries everything the pipeline needs for one document.
type GenerateRequest struct {
	Type            models.DocumentType
	AssistantID     string
	CondominiumName string
	Occurrence      Occurrence
}

// Pipeline turns collected infraction data into a finished document body.
//
// The primary path runs the condominium's assistant on a fresh thread. Any
// primary failure (missing configuration, transport error, failed run, empty
// reply) falls back to a stateless chat completion. Both paths share the same
// cleanup and post-processing.
type Pipeline struct {
	client genai.ClientInterface
}

// NewPipeline creates a document pipeline backed by the given GenAI client.
func NewPipeline(client genai.ClientInterface) *Pipeline {
	return &Pipeline{client: client}
}

// Generate produces the post-processed document body for the request.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	prompt := ComposePrompt(req.Type, req.Occurrence)

	body, err := p.runAssistant(ctx, req.AssistantID, prompt)
	observeGeneration(pathAssistant, err)
	if err == nil {
		return p.finish(body, req.Type), nil
	}
	slog.Warn("Pipeline.Generate: assistant path failed, using fallback", "error", err, "assistantID", req.AssistantID, "type", req.Type)

	body, err = p.runFallback(ctx, req, prompt)
	observeGeneration(pathFallback, err)
	if err != nil {
		slog.Error("Pipeline.Generate: fallback failed", "error", err, "type", req.Type)
		return "", fmt.Errorf("%w: %s", ErrGenerationFailed, GenerationFailureMessage)
	}
	return p.finish(body, req.Type), nil
}

func (p *Pipeline) runAssistant(ctx context.Context, assistantID, prompt string) (string, error) {
	if p.client == nil {
		return "", genai.ErrNotConfigured
	}
	if assistantID == "" {
		return "", models.ErrEmptyAssistantID
	}
	threadID, err := p.client.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	reply, err := p.client.RunAssistant(ctx, threadID, assistantID, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", genai.ErrEmptyReply
	}
	return reply, nil
}

func (p *Pipeline) runFallback(ctx context.Context, req GenerateRequest, prompt string) (string, error) {
	if p.client == nil {
		return "", genai.ErrNotConfigured
	}
	system := FallbackSystemPrompt(req.CondominiumName, req.Type)
	reply, err := p.client.Complete(ctx, p.client.FallbackModel(), system, prompt, genai.DefaultTemperature)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", genai.ErrEmptyReply
	}
	return reply, nil
}

func (p *Pipeline) finish(body string, docType models.DocumentType) string {
	return PostProcess(CleanReply(body), docType)
}

// OccurrenceFromValues maps the guided flow's collected values onto an
// Occurrence. Missing keys produce zero values.
func OccurrenceFromValues(values map[string]string) Occurrence {
	return Occurrence{
		Date:        values["data"],
		Description: values["descricao"],
		Value:       ParseValue(values["valor"]),
	}
}

// ParseValue parses a monetary amount as typed by the user, accepting
// "200", "200,00", "200.00" and an optional "R$" prefix.
func ParseValue(raw string) float64 {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "R$")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	// Brazilian decimal comma; thousand separators dropped.
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

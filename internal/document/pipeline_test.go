package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sindicoapp/sindico/internal/genai"
	"github.com/sindicoapp/sindico/internal/models"
)

type fakeGenAI struct {
	threadErr    error
	runReply     string
	runErr       error
	runCalls     int
	completeText string
	completeErr  error
	compCalls    int

	lastPrompt string
	lastSystem string
}

func (f *fakeGenAI) CreateThread(ctx context.Context) (string, error) {
	if f.threadErr != nil {
		return "", f.threadErr
	}
	return "thread_test", nil
}

func (f *fakeGenAI) RunAssistant(ctx context.Context, threadID, assistantID, prompt string) (string, error) {
	f.runCalls++
	f.lastPrompt = prompt
	return f.runReply, f.runErr
}

func (f *fakeGenAI) Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64) (string, error) {
	f.compCalls++
	f.lastSystem = systemPrompt
	f.lastPrompt = userPrompt
	return f.completeText, f.completeErr
}

func (f *fakeGenAI) GetAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGenAI) ListAssistants(ctx context.Context) ([]models.Assistant, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGenAI) FallbackModel() string { return genai.DefaultFallbackModel }

func multaRequest() GenerateRequest {
	return GenerateRequest{
		Type:            models.DocumentMulta,
		AssistantID:     "asst_1",
		CondominiumName: "Condomínio Sol",
		Occurrence: Occurrence{
			Date:        "2024-05-10",
			Description: "Vaga ocupada indevidamente",
			Value:       200,
		},
	}
}

func TestPipelineAssistantPath(t *testing.T) {
	fake := &fakeGenAI{runReply: "Prezado Sr./Sra. Silva,\n\nTexto gerado.【4:0†REGIMENTO.pdf】\n\nAtenciosamente."}
	p := NewPipeline(fake)

	body, err := p.Generate(context.Background(), multaRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.runCalls != 1 {
		t.Errorf("expected 1 assistant run, got %d", fake.runCalls)
	}
	if fake.compCalls != 0 {
		t.Errorf("fallback should not run on success, got %d calls", fake.compCalls)
	}
	if strings.Contains(body, "【") {
		t.Errorf("citation markers not cleaned: %q", body)
	}
	if !strings.Contains(fake.lastPrompt, "R$ 200,00") {
		t.Errorf("prompt missing formatted value: %q", fake.lastPrompt)
	}
}

func TestPipelineFallbackOnRunError(t *testing.T) {
	fake := &fakeGenAI{
		runErr:       genai.ErrRunFailed,
		completeText: "Prezado Sr./Sra. Silva,\n\nDocumento pelo fallback.\n\nAtenciosamente.",
	}
	p := NewPipeline(fake)

	body, err := p.Generate(context.Background(), multaRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.compCalls != 1 {
		t.Errorf("expected 1 fallback call, got %d", fake.compCalls)
	}
	if !strings.Contains(body, "Documento pelo fallback.") {
		t.Errorf("fallback body lost: %q", body)
	}
	if !strings.Contains(fake.lastSystem, "Condomínio Sol") {
		t.Errorf("fallback system prompt missing condominium name: %q", fake.lastSystem)
	}
}

func TestPipelineFallbackOnEmptyReply(t *testing.T) {
	fake := &fakeGenAI{
		runReply:     "   ",
		completeText: "Prezado Sr./Sra. Silva,\n\nTexto.\n\nAtenciosamente.",
	}
	p := NewPipeline(fake)

	if _, err := p.Generate(context.Background(), multaRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.compCalls != 1 {
		t.Errorf("empty assistant reply should trigger fallback, got %d calls", fake.compCalls)
	}
}

func TestPipelineTerminalFailure(t *testing.T) {
	fake := &fakeGenAI{
		runErr:      genai.ErrRunTimeout,
		completeErr: errors.New("network down"),
	}
	p := NewPipeline(fake)

	_, err := p.Generate(context.Background(), multaRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), GenerationFailureMessage) {
		t.Errorf("terminal error missing user-facing message: %v", err)
	}
}

func TestPipelineMissingAssistantUsesFallback(t *testing.T) {
	fake := &fakeGenAI{completeText: "Prezado Sr./Sra. Silva,\n\nTexto.\n\nAtenciosamente."}
	p := NewPipeline(fake)

	req := multaRequest()
	req.AssistantID = ""
	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.runCalls != 0 {
		t.Errorf("assistant path should be skipped without an assistant id, got %d runs", fake.runCalls)
	}
	if fake.compCalls != 1 {
		t.Errorf("expected fallback, got %d calls", fake.compCalls)
	}
}

func TestOccurrenceFromValues(t *testing.T) {
	occ := OccurrenceFromValues(map[string]string{
		"data":      "2024-05-10",
		"valor":     "R$ 200,00",
		"descricao": "Vaga ocupada indevidamente",
	})
	if occ.Date != "2024-05-10" {
		t.Errorf("expected date %q, got %q", "2024-05-10", occ.Date)
	}
	if occ.Value != 200 {
		t.Errorf("expected value 200, got %v", occ.Value)
	}
	if occ.Description != "Vaga ocupada indevidamente" {
		t.Errorf("expected description preserved, got %q", occ.Description)
	}
}

package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sindicoapp/sindico/internal/document"
	"github.com/sindicoapp/sindico/internal/models"
	"github.com/sindicoapp/sindico/internal/store"
)

type fakeGenerator struct {
	body    string
	err     error
	calls   int
	lastReq document.GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req document.GenerateRequest) (string, error) {
	f.calls++
	f.lastReq = req
	return f.body, f.err
}

func newTestEngine(t *testing.T, gen *fakeGenerator) (*Engine, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	return NewEngine(s, gen, WithCondominiumName("Condomínio Sol")), s
}

func TestEngineStartMessages(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})

	res, err := engine.Start(context.Background(), "u1", "asst_1", models.DocumentMulta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Messages) != 3 {
		t.Fatalf("expected 3 opening messages, got %d", len(res.Messages))
	}
	if res.Messages[0] != "Iniciando criação de Multa. Vou guiá-lo pelo processo." {
		t.Errorf("unexpected intro: %q", res.Messages[0])
	}
	if !strings.Contains(res.Messages[1], "fundamentação legal") {
		t.Errorf("expected legal grounding request, got %q", res.Messages[1])
	}
	if res.Messages[2] != "Qual a data da infração?" {
		t.Errorf("expected first step prompt, got %q", res.Messages[2])
	}
}

func TestEngineStartTwiceFails(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentMulta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := engine.Start(ctx, "u1", "asst_1", models.DocumentAdvertencia)
	if !errors.Is(err, models.ErrFlowAlreadyActive) {
		t.Fatalf("expected ErrFlowAlreadyActive, got %v", err)
	}
}

func TestEngineHandleMessageWithoutFlow(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})

	_, err := engine.HandleMessage(context.Background(), "u1", "asst_1", "olá")
	if !errors.Is(err, models.ErrFlowNotActive) {
		t.Fatalf("expected ErrFlowNotActive, got %v", err)
	}
}

func TestEngineFullMultaFlow(t *testing.T) {
	gen := &fakeGenerator{body: "CONDOMÍNIO\nNOTIFICAÇÃO DE MULTA\n\nPrezado Sr./Sra. Silva,\n\nCorpo.\n\nAtenciosamente."}
	engine, s := newTestEngine(t, gen)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentMulta); err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := engine.HandleMessage(ctx, "u1", "asst_1", "2024-05-10")
	if err != nil {
		t.Fatalf("date step: %v", err)
	}
	if res.Messages[0] != "Qual o valor da multa?" {
		t.Errorf("expected value prompt, got %q", res.Messages[0])
	}

	if res, err = engine.HandleMessage(ctx, "u1", "asst_1", "200,00"); err != nil {
		t.Fatalf("value step: %v", err)
	}
	if res.Messages[0] != "Descreva a infração cometida:" {
		t.Errorf("expected description prompt, got %q", res.Messages[0])
	}

	if res, err = engine.HandleMessage(ctx, "u1", "asst_1", "Vaga ocupada indevidamente"); err != nil {
		t.Fatalf("description step: %v", err)
	}
	if !strings.Contains(res.Messages[0], "Envie até 3 imagens") {
		t.Errorf("expected image prompt, got %q", res.Messages[0])
	}

	res, err = engine.AttachImages(ctx, "u1", "asst_1", []string{"foto1.jpg", "foto2.png"})
	if err != nil {
		t.Fatalf("image step: %v", err)
	}
	if !res.Done {
		t.Fatal("expected flow to finish after the last step")
	}
	if gen.calls != 1 {
		t.Fatalf("expected exactly one generation, got %d", gen.calls)
	}
	if gen.lastReq.Type != models.DocumentMulta {
		t.Errorf("expected multa request, got %s", gen.lastReq.Type)
	}
	if gen.lastReq.Occurrence.Value != 200 {
		t.Errorf("expected value 200, got %v", gen.lastReq.Occurrence.Value)
	}
	if gen.lastReq.Occurrence.Description != "Vaga ocupada indevidamente" {
		t.Errorf("description lost: %q", gen.lastReq.Occurrence.Description)
	}
	if gen.lastReq.CondominiumName != "Condomínio Sol" {
		t.Errorf("condominium name lost: %q", gen.lastReq.CondominiumName)
	}

	summary := res.Messages[0]
	for _, want := range []string{
		"**Resumo de Multa**",
		"**Qual a data da infração?**\n2024-05-10",
		"**Qual o valor da multa?**\n200,00",
		"foto1.jpg, foto2.png",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if res.Messages[1] != generationSuccess {
		t.Errorf("expected success message, got %q", res.Messages[1])
	}

	if res.Document == nil {
		t.Fatal("expected a generated document")
	}
	if res.Document.Date != "10/05/2024" {
		t.Errorf("expected formatted date, got %q", res.Document.Date)
	}
	saved, err := s.GetDocument(res.Document.ID)
	if err != nil || saved == nil {
		t.Fatalf("document not persisted: %v", err)
	}

	active, err := engine.Active("u1", "asst_1")
	if err != nil {
		t.Fatalf("active check: %v", err)
	}
	if active {
		t.Error("expected session to be cleared after completion")
	}
}

func TestEngineEmptyDateReprompts(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := engine.HandleMessage(ctx, "u1", "asst_1", "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Messages[0] != datePromptRequired {
		t.Errorf("expected validation message, got %q", res.Messages[0])
	}
	if res.Messages[1] != "Qual a data do incidente?" {
		t.Errorf("expected the same step prompt again, got %q", res.Messages[1])
	}

	// Still on the date step.
	res, err = engine.HandleMessage(ctx, "u1", "asst_1", "2024-02-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Messages[0] != "Descreva o incidente detalhadamente:" {
		t.Errorf("expected description prompt after valid date, got %q", res.Messages[0])
	}
}

func TestEngineImageStepTextReprompts(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "2024-02-03"); err != nil {
		t.Fatalf("date step: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "Barulho após as 22h"); err != nil {
		t.Fatalf("description step: %v", err)
	}

	res, err := engine.HandleMessage(ctx, "u1", "asst_1", "seguem as fotos")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Done {
		t.Error("text on an image step must not finish the flow")
	}
	if !strings.Contains(res.Messages[0], "Envie até 3 imagens") {
		t.Errorf("expected image prompt again, got %q", res.Messages[0])
	}
}

func TestEngineSkipImages(t *testing.T) {
	gen := &fakeGenerator{body: "Documento."}
	engine, _ := newTestEngine(t, gen)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "2024-02-03"); err != nil {
		t.Fatalf("date step: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "Barulho após as 22h"); err != nil {
		t.Fatalf("description step: %v", err)
	}

	res, err := engine.SkipImages(ctx, "u1", "asst_1")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !res.Done {
		t.Fatal("expected flow to finish after skipping the image step")
	}
	if gen.calls != 1 {
		t.Fatalf("expected exactly one generation, got %d", gen.calls)
	}
	if !strings.Contains(res.Messages[0], "Não informado") {
		t.Errorf("summary should mark the skipped step as not informed:\n%s", res.Messages[0])
	}
}

func TestEngineAttachTooManyImages(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "2024-02-03"); err != nil {
		t.Fatalf("date step: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "Barulho"); err != nil {
		t.Fatalf("description step: %v", err)
	}

	_, err := engine.AttachImages(ctx, "u1", "asst_1", []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"})
	if !errors.Is(err, models.ErrTooManyImages) {
		t.Fatalf("expected ErrTooManyImages, got %v", err)
	}

	// The whole batch is rejected; the flow stays on the image step.
	res, err := engine.AttachImages(ctx, "u1", "asst_1", []string{"a.jpg"})
	if err != nil {
		t.Fatalf("retry with valid batch: %v", err)
	}
	if !res.Done {
		t.Error("expected flow to finish after a valid batch")
	}
}

func TestEngineAttachImagesOnNonImageStep(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentMulta); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.AttachImages(ctx, "u1", "asst_1", []string{"a.jpg"}); err == nil {
		t.Fatal("expected error when attaching images on the date step")
	}
}

func TestEngineGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: document.ErrGenerationFailed}
	engine, _ := newTestEngine(t, gen)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "2024-02-03"); err != nil {
		t.Fatalf("date step: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "Barulho"); err != nil {
		t.Fatalf("description step: %v", err)
	}

	res, err := engine.SkipImages(ctx, "u1", "asst_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Done {
		t.Fatal("flow must end even when generation fails")
	}
	if res.Document != nil {
		t.Error("no document should be returned on failure")
	}
	last := res.Messages[len(res.Messages)-1]
	if !strings.HasPrefix(last, "❌") {
		t.Errorf("failure message should be ❌-prefixed, got %q", last)
	}
	if !strings.Contains(last, document.GenerationFailureMessage) {
		t.Errorf("failure message should carry the retry text, got %q", last)
	}

	active, err := engine.Active("u1", "asst_1")
	if err != nil {
		t.Fatalf("active check: %v", err)
	}
	if active {
		t.Error("session must be cleared before generation runs")
	}
}

func TestEngineResetAbandonsFlow(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentMulta); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Reset("u1", "asst_1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := engine.HandleMessage(ctx, "u1", "asst_1", "2024-05-10"); !errors.Is(err, models.ErrFlowNotActive) {
		t.Fatalf("expected ErrFlowNotActive after reset, got %v", err)
	}
}

func TestEngineFlowsAreIsolatedPerPair(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeGenerator{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", "asst_1", models.DocumentMulta); err != nil {
		t.Fatalf("start u1: %v", err)
	}
	if _, err := engine.Start(ctx, "u2", "asst_1", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start u2: %v", err)
	}
	if _, err := engine.Start(ctx, "u1", "asst_2", models.DocumentAdvertencia); err != nil {
		t.Fatalf("start u1/asst_2: %v", err)
	}

	res, err := engine.HandleMessage(ctx, "u2", "asst_1", "2024-02-03")
	if err != nil {
		t.Fatalf("u2 date step: %v", err)
	}
	if res.Messages[0] != "Descreva o incidente detalhadamente:" {
		t.Errorf("u2 should be on the advertência flow, got %q", res.Messages[0])
	}
}

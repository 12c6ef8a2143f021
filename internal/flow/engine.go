package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sindicoapp/sindico/internal/document"
	"github.com/sindicoapp/sindico/internal/models"
	"github.com/sindicoapp/sindico/internal/store"
	"github.com/sindicoapp/sindico/internal/util"
)

// Messages shown by the engine around a wizard run.
const (
	legalGroundingMessage = `Antes de prosseguirmos, é importante ter uma fundamentação legal adequada para este documento.

Se possível, forneça:
1) A referência específica do regulamento (artigo, cláusula, inciso)
2) Qual parte do documento trata do ocorrido
3) Se houver, a penalidade prevista para este tipo de situação

Estas informações ajudarão a gerar um documento mais preciso e efetivo.`

	datePromptRequired = "Por favor, selecione uma data."
	generationSuccess  = "Documento gerado com sucesso!"
	imagesSkippedValue = ""
)

// Generator produces the document body from the collected flow values.
// document.Pipeline satisfies it; tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, req document.GenerateRequest) (string, error)
}

// Result is what the engine hands back for one user interaction: the bot
// messages to display in order, the generated document when the flow
// finished successfully, and whether the flow is over.
type Result struct {
	Messages []string
	Document *models.GeneratedDocument
	Done     bool
}

// Engine drives guided flows. It persists sessions through a StateManager,
// collects one value per step and invokes the generator exactly once when
// the last step completes. The session is removed before generation, so a
// failed generation never leaves a stuck wizard behind.
type Engine struct {
	states          StateManager
	registry        *Registry
	generator       Generator
	store           store.Store
	condominiumName string
}

// Opts holds configuration for an Engine.
type Opts struct {
	States          StateManager
	Registry        *Registry
	Generator       Generator
	Store           store.Store
	CondominiumName string
}

// Option configures Opts.
type Option func(*Opts)

// WithRegistry overrides the built-in flow definitions.
func WithRegistry(r *Registry) Option {
	return func(o *Opts) { o.Registry = r }
}

// WithCondominiumName sets the condominium name used in generation prompts.
func WithCondominiumName(name string) Option {
	return func(o *Opts) { o.CondominiumName = name }
}

// NewEngine creates an engine over the given store and generator.
func NewEngine(s store.Store, generator Generator, opts ...Option) *Engine {
	o := Opts{
		States:    NewStoreBasedStateManager(s),
		Registry:  NewRegistry(),
		Generator: generator,
		Store:     s,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		states:          o.States,
		registry:        o.Registry,
		generator:       o.Generator,
		store:           o.Store,
		condominiumName: o.CondominiumName,
	}
}

// Active reports whether a flow is running for the pair.
func (e *Engine) Active(userID, assistantID string) (bool, error) {
	state, err := e.states.Current(userID, assistantID)
	if err != nil {
		return false, err
	}
	return state != nil, nil
}

// Start begins a flow of the given type and returns the opening messages:
// the intro, the legal grounding request and the first step prompt.
func (e *Engine) Start(ctx context.Context, userID, assistantID string, docType models.DocumentType) (*Result, error) {
	def, ok := e.registry.Definition(docType)
	if !ok {
		return nil, models.ErrInvalidDocumentType
	}
	slog.Info("Engine.Start: beginning guided flow", "userID", userID, "assistantID", assistantID, "docType", docType)

	if _, err := e.states.Begin(userID, assistantID, docType); err != nil {
		return nil, err
	}
	return &Result{Messages: []string{
		fmt.Sprintf("Iniciando criação de %s. Vou guiá-lo pelo processo.", def.Name),
		legalGroundingMessage,
		def.Steps[0].Prompt,
	}}, nil
}

// HandleMessage feeds a user text into the active flow. Date steps reject
// blank input and re-prompt without advancing; text and numeric steps store
// the input verbatim. On an image step the user is pointed back at the step
// prompt, since images arrive through AttachImages or SkipImages.
func (e *Engine) HandleMessage(ctx context.Context, userID, assistantID, text string) (*Result, error) {
	state, def, step, err := e.currentStep(userID, assistantID)
	if err != nil {
		return nil, err
	}

	switch step.Kind {
	case models.StepKindDate:
		if strings.TrimSpace(text) == "" {
			return &Result{Messages: []string{datePromptRequired, step.Prompt}}, nil
		}
	case models.StepKindImages:
		return &Result{Messages: []string{step.Prompt}}, nil
	}

	return e.advance(ctx, state, def, step.Field, text)
}

// AttachImages records an uploaded image batch on the current image step.
func (e *Engine) AttachImages(ctx context.Context, userID, assistantID string, imageNames []string) (*Result, error) {
	state, def, step, err := e.currentStep(userID, assistantID)
	if err != nil {
		return nil, err
	}
	if step.Kind != models.StepKindImages {
		return nil, fmt.Errorf("Engine.AttachImages: current step %q does not accept images", step.Field)
	}
	max := step.Max
	if max <= 0 {
		max = models.DefaultMaxImages
	}
	if len(imageNames) > max {
		return nil, models.ErrTooManyImages
	}
	return e.advance(ctx, state, def, step.Field, strings.Join(imageNames, ", "))
}

// SkipImages advances past the current image step without any files.
func (e *Engine) SkipImages(ctx context.Context, userID, assistantID string) (*Result, error) {
	state, def, step, err := e.currentStep(userID, assistantID)
	if err != nil {
		return nil, err
	}
	if step.Kind != models.StepKindImages {
		return nil, fmt.Errorf("Engine.SkipImages: current step %q is not an image step", step.Field)
	}
	return e.advance(ctx, state, def, step.Field, imagesSkippedValue)
}

// Reset abandons the active flow, if any.
func (e *Engine) Reset(userID, assistantID string) error {
	return e.states.Reset(userID, assistantID)
}

func (e *Engine) currentStep(userID, assistantID string) (*models.FlowState, models.FlowDefinition, models.FlowStep, error) {
	state, err := e.states.Current(userID, assistantID)
	if err != nil {
		return nil, models.FlowDefinition{}, models.FlowStep{}, err
	}
	if state == nil {
		return nil, models.FlowDefinition{}, models.FlowStep{}, models.ErrFlowNotActive
	}
	def, ok := e.registry.Definition(state.Type)
	if !ok {
		return nil, models.FlowDefinition{}, models.FlowStep{}, models.ErrInvalidDocumentType
	}
	if state.StepIndex >= len(def.Steps) {
		// Stale session past the last step; clear it rather than wedge the user.
		if resetErr := e.states.Reset(userID, assistantID); resetErr != nil {
			slog.Error("Engine.currentStep: failed to clear stale session", "error", resetErr)
		}
		return nil, models.FlowDefinition{}, models.FlowStep{}, models.ErrFlowNotActive
	}
	return state, def, def.Steps[state.StepIndex], nil
}

func (e *Engine) advance(ctx context.Context, state *models.FlowState, def models.FlowDefinition, field, value string) (*Result, error) {
	if err := e.states.Advance(state, field, value); err != nil {
		return nil, err
	}
	if state.StepIndex < len(def.Steps) {
		return &Result{Messages: []string{def.Steps[state.StepIndex].Prompt}}, nil
	}
	return e.finish(ctx, state, def)
}

// finish renders the summary, clears the session and runs the generator.
// The session is removed first so a generation failure ends the wizard
// instead of trapping the user on its last step.
func (e *Engine) finish(ctx context.Context, state *models.FlowState, def models.FlowDefinition) (*Result, error) {
	summary := renderSummary(def, state.Values)

	if err := e.states.Reset(state.UserID, state.AssistantID); err != nil {
		return nil, err
	}

	slog.Info("Engine.finish: generating document",
		"userID", state.UserID, "assistantID", state.AssistantID, "docType", state.Type)
	body, err := e.generator.Generate(ctx, document.GenerateRequest{
		Type:            state.Type,
		AssistantID:     state.AssistantID,
		CondominiumName: e.condominiumName,
		Occurrence:      document.OccurrenceFromValues(state.Values),
	})
	if err != nil {
		slog.Error("Engine.finish: generation failed",
			"userID", state.UserID, "assistantID", state.AssistantID, "error", err)
		return &Result{
			Messages: []string{summary, "❌ Erro ao gerar documento: " + document.GenerationFailureMessage},
			Done:     true,
		}, nil
	}

	doc := &models.GeneratedDocument{
		ID:          util.GenerateUploadID(),
		Type:        state.Type,
		UserID:      state.UserID,
		AssistantID: state.AssistantID,
		Body:        body,
		Date:        document.FormatDate(state.Values["data"]),
		Value:       state.Values["valor"],
		Description: state.Values["descricao"],
		CreatedAt:   time.Now(),
	}
	if err := e.store.SaveDocument(*doc); err != nil {
		slog.Error("Engine.finish: failed to persist document", "documentID", doc.ID, "error", err)
	}

	return &Result{
		Messages: []string{summary, generationSuccess},
		Document: doc,
		Done:     true,
	}, nil
}

// renderSummary lists every step prompt with the collected value, using
// "Não informado" for blanks.
func renderSummary(def models.FlowDefinition, values map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Resumo de %s**\n\n", def.Name)
	for _, step := range def.Steps {
		value := values[step.Field]
		if value == "" {
			value = "Não informado"
		}
		fmt.Fprintf(&b, "**%s**\n%s\n\n", step.Prompt, value)
	}
	return b.String()
}

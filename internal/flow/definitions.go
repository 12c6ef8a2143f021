package flow

import (
	"fmt"

	"github.com/sindicoapp/sindico/internal/models"
)

// Built-in wizard templates. Prompts are shown to the user verbatim.
var builtinDefinitions = map[models.DocumentType]models.FlowDefinition{
	models.DocumentAdvertencia: {
		Type: models.DocumentAdvertencia,
		Name: "Advertência",
		Steps: []models.FlowStep{
			{Prompt: "Qual a data do incidente?", Field: "data", Kind: models.StepKindDate},
			{Prompt: "Descreva o incidente detalhadamente:", Field: "descricao", Kind: models.StepKindText},
			{
				Prompt: "Envie até 3 imagens que comprovem o incidente (JPG, PNG ou JPEG - máximo 5MB cada):",
				Field:  "imagens",
				Kind:   models.StepKindImages,
				Max:    models.DefaultMaxImages,
			},
		},
	},
	models.DocumentMulta: {
		Type: models.DocumentMulta,
		Name: "Multa",
		Steps: []models.FlowStep{
			{Prompt: "Qual a data da infração?", Field: "data", Kind: models.StepKindDate},
			{Prompt: "Qual o valor da multa?", Field: "valor", Kind: models.StepKindNumber},
			{Prompt: "Descreva a infração cometida:", Field: "descricao", Kind: models.StepKindText},
			{
				Prompt: "Envie até 3 imagens que comprovem a infração (JPG, PNG ou JPEG - máximo 5MB cada):",
				Field:  "imagens",
				Kind:   models.StepKindImages,
				Max:    models.DefaultMaxImages,
			},
		},
	},
}

// Registry holds the flow definitions the engine can run.
type Registry struct {
	definitions map[models.DocumentType]models.FlowDefinition
}

// NewRegistry returns a registry with the built-in definitions.
func NewRegistry() *Registry {
	defs := make(map[models.DocumentType]models.FlowDefinition, len(builtinDefinitions))
	for t, d := range builtinDefinitions {
		defs[t] = d
	}
	return &Registry{definitions: defs}
}

// Register validates and installs a definition, replacing any existing one
// for the same document type.
func (r *Registry) Register(def models.FlowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("Registry.Register: invalid definition for %s: %w", def.Type, err)
	}
	r.definitions[def.Type] = def
	return nil
}

// Definition returns the definition for a document type.
func (r *Registry) Definition(docType models.DocumentType) (models.FlowDefinition, bool) {
	def, ok := r.definitions[docType]
	return def, ok
}

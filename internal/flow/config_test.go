package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sindicoapp/sindico/internal/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigOverridesFlow(t *testing.T) {
	path := writeConfigFile(t, `
flows:
  - type: advertencia
    name: Advertência Simplificada
    steps:
      - prompt: "Qual a data do ocorrido?"
        field: data
        kind: data
      - prompt: "O que aconteceu?"
        field: descricao
        kind: texto
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	registry := NewRegistry()
	if _, err := cfg.Apply(registry); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	def, ok := registry.Definition(models.DocumentAdvertencia)
	if !ok {
		t.Fatal("advertência definition missing after override")
	}
	if def.Name != "Advertência Simplificada" {
		t.Errorf("expected overridden name, got %q", def.Name)
	}
	if len(def.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(def.Steps))
	}

	// The multa flow keeps its built-in definition.
	multa, ok := registry.Definition(models.DocumentMulta)
	if !ok || len(multa.Steps) != 4 {
		t.Errorf("multa definition should be untouched, got %+v", multa)
	}
}

func TestLoadConfigOverridesIntents(t *testing.T) {
	path := writeConfigFile(t, `
intents:
  - type: multa
    pattern: 'penalizar\s+financeiramente'
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	detector, err := cfg.Apply(NewRegistry())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := detector.Detect("quero penalizar financeiramente o morador"); got != models.DocumentMulta {
		t.Errorf("expected custom pattern to match, got %q", got)
	}
	// Override replaces the defaults entirely.
	if got := detector.Detect("gerar uma multa"); got != "" {
		t.Errorf("default patterns should be replaced, got %q", got)
	}
}

func TestLoadConfigRejectsBadPattern(t *testing.T) {
	path := writeConfigFile(t, `
intents:
  - type: multa
    pattern: '['
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := cfg.Apply(NewRegistry()); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestLoadConfigRejectsInvalidFlow(t *testing.T) {
	path := writeConfigFile(t, `
flows:
  - type: despejo
    name: Despejo
    steps:
      - prompt: "Quando?"
        field: data
        kind: data
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := cfg.Apply(NewRegistry()); err == nil {
		t.Fatal("expected error for unknown document type")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

package document

import (
	"strings"
	"testing"

	"github.com/sindicoapp/sindico/internal/models"
)

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-05-10", "10/05/2024"},
		{"2023-12-01", "01/12/2023"},
		{"10/05/2024", "10/05/2024"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatDate(tt.in); got != tt.want {
			t.Errorf("FormatDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{150, "150,00"},
		{200.5, "200,50"},
		{0, "0,00"},
		{1234.56, "1234,56"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"200", 200},
		{"200,00", 200},
		{"200.50", 200.5},
		{"R$ 150,75", 150.75},
		{"1.234,56", 1234.56},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := ParseValue(tt.in); got != tt.want {
			t.Errorf("ParseValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComposePromptAdvertencia(t *testing.T) {
	prompt := ComposePrompt(models.DocumentAdvertencia, Occurrence{
		ResidentName: "João Silva",
		Block:        "B",
		Unit:         "101",
		Date:         "2024-05-10",
		Description:  "Uso de furadeira após as 22h",
	})

	for _, want := range []string{
		"advertência para o condômino João Silva",
		"do Bloco B, ",
		"da unidade 101",
		"ocorrência de 10/05/2024: Uso de furadeira após as 22h",
		"Lei de Condomínio nº 4.591/64",
		"Encerrar com \"Atenciosamente.\"",
		"NÃO inclua o marcador '[FOTO(S)]'",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("advertência prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "valor de R$") {
		t.Error("advertência prompt should not mention a fine value")
	}
}

func TestComposePromptMulta(t *testing.T) {
	prompt := ComposePrompt(models.DocumentMulta, Occurrence{
		Date:        "2024-05-10",
		Description: "Vaga ocupada indevidamente",
		Value:       200,
	})

	for _, want := range []string{
		"multa no valor de R$ 200,00",
		"para o condômino " + DefaultResidentName,
		"da unidade " + DefaultUnit,
		"ocorrência de 10/05/2024: Vaga ocupada indevidamente",
		"valor da multa aplicada e o prazo para pagamento",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("multa prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "do Bloco") {
		t.Error("multa prompt should omit the block segment when unset")
	}
}

func TestFallbackSystemPrompt(t *testing.T) {
	got := FallbackSystemPrompt("Condomínio Sol Nascente", models.DocumentMulta)
	if !strings.Contains(got, "Condomínio Sol Nascente") {
		t.Errorf("system prompt missing condominium name: %q", got)
	}
	if !strings.Contains(got, "documento formal de multa") {
		t.Errorf("system prompt missing document kind: %q", got)
	}

	got = FallbackSystemPrompt("", models.DocumentAdvertencia)
	if !strings.Contains(got, "para o Condomínio.") {
		t.Errorf("expected generic condominium name, got %q", got)
	}
	if !strings.Contains(got, "documento formal de advertência") {
		t.Errorf("system prompt missing document kind: %q", got)
	}
}

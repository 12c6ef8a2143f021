// Package flow implements the guided document flows: intent detection on
// free-form chat messages, the built-in advertência and multa flow
// definitions, and a store-backed engine that walks a user through the
// steps and hands the collected values to the document pipeline.
package flow

import (
	"regexp"
	"strings"

	"github.com/sindicoapp/sindico/internal/models"
)

// IntentPattern pairs a document type with the regex that triggers it.
type IntentPattern struct {
	Type    models.DocumentType
	Pattern *regexp.Regexp
}

// Default trigger phrases. Advertência patterns are listed first and
// checked first, so a message mentioning both kinds starts an advertência.
var defaultIntentPatterns = []IntentPattern{
	{models.DocumentAdvertencia, regexp.MustCompile(`gera\w*\s+(?:uma\s+)?advertência`)},
	{models.DocumentAdvertencia, regexp.MustCompile(`cria\w*\s+(?:uma\s+)?advertência`)},
	{models.DocumentAdvertencia, regexp.MustCompile(`emiti\w*\s+(?:uma\s+)?advertência`)},
	{models.DocumentAdvertencia, regexp.MustCompile(`preciso\s+(?:de\s+)?(?:uma\s+)?advertência`)},
	{models.DocumentAdvertencia, regexp.MustCompile(`quero\s+(?:fazer|criar|gerar)\s+(?:uma\s+)?advertência`)},
	{models.DocumentAdvertencia, regexp.MustCompile(`advertir\s+(?:o|a)\s+`)},
	{models.DocumentMulta, regexp.MustCompile(`gera\w*\s+(?:uma\s+)?multa`)},
	{models.DocumentMulta, regexp.MustCompile(`cria\w*\s+(?:uma\s+)?multa`)},
	{models.DocumentMulta, regexp.MustCompile(`emiti\w*\s+(?:uma\s+)?multa`)},
	{models.DocumentMulta, regexp.MustCompile(`preciso\s+(?:de\s+)?(?:uma\s+)?multa`)},
	{models.DocumentMulta, regexp.MustCompile(`quero\s+(?:fazer|criar|gerar)\s+(?:uma\s+)?multa`)},
	{models.DocumentMulta, regexp.MustCompile(`aplicar\s+(?:uma\s+)?multa`)},
}

// IntentDetector matches chat messages against an ordered pattern list.
type IntentDetector struct {
	patterns []IntentPattern
}

// NewIntentDetector returns a detector with the built-in pattern set.
func NewIntentDetector() *IntentDetector {
	return &IntentDetector{patterns: defaultIntentPatterns}
}

// NewIntentDetectorWithPatterns returns a detector that checks the given
// patterns in order. An empty list falls back to the built-in set.
func NewIntentDetectorWithPatterns(patterns []IntentPattern) *IntentDetector {
	if len(patterns) == 0 {
		return NewIntentDetector()
	}
	return &IntentDetector{patterns: patterns}
}

// Detect returns the document type the message asks for, or "" when the
// message carries no document intent. Matching is case-insensitive.
func (d *IntentDetector) Detect(message string) models.DocumentType {
	lower := strings.ToLower(message)
	for _, p := range d.patterns {
		if p.Pattern.MatchString(lower) {
			return p.Type
		}
	}
	return ""
}

// DetectIntent applies the built-in pattern set.
func DetectIntent(message string) models.DocumentType {
	return NewIntentDetector().Detect(message)
}

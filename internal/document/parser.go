package document

import (
	"regexp"
	"strings"
	"time"

	"github.com/sindicoapp/sindico/internal/models"
)

// Display titles used when a generated document marker is restyled.
const (
	multaDisplayTitle       = "🔴 MULTA GERADA"
	advertenciaDisplayTitle = "⚠️ ADVERTÊNCIA GERADA"
)

var (
	// Strict markers: title line through the end marker (or end of reply).
	advertenciaStrictRe = regexp.MustCompile(`(?is)ADVERTÊNCIA GERADA.*?(?:FIM DOCUMENTO|$)`)
	multaStrictRe       = regexp.MustCompile(`(?is)MULTA GERADA.*?(?:FIM DOCUMENTO|$)`)

	// Loose markers for replies with freer formatting.
	advertenciaLooseRe = regexp.MustCompile(`(?is)(?:advertência gerada|⚠️ ADVERTÊNCIA GERADA).*`)
	multaLooseRe       = regexp.MustCompile(`(?is)(?:multa gerada|🔴 MULTA GERADA).*`)

	dateFieldRe  = regexp.MustCompile(`(?i)Data:?\s*([^\n]+)`)
	valueFieldRe = regexp.MustCompile(`(?i)Valor:?\s*R?\$?\s*([0-9.,]+)`)
	reasonRe     = regexp.MustCompile(`(?i)(?:Motivo|Descrição|Infração):?\s*([^\n]+(?:\n[^\n]+)*)`)
	legalFieldRe = regexp.MustCompile(`(?i)(?:Fundamentação|Base Legal|Artigo|Lei):?\s*([^\n]+(?:\n[^\n]+)*)`)

	bareDateRe  = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{2,4})`)
	bareValueRe = regexp.MustCompile(`(?i)R\$\s*(\d+[.,]\d+)`)

	legalKeywordsRe = regexp.MustCompile(`(?i)(?:(?:de acordo com|conforme|segundo|baseado n[ao]|nos termos d[ao]|[ao]rt(?:igo)?\.?)\s+(?:[0-9]+|[IVXLCDM]+))`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)

	allMarkersRe = regexp.MustCompile(`(?i)(?:ADVERTÊNCIA GERADA:?|MULTA GERADA:?|FIM DOCUMENTO|⚠️ ADVERTÊNCIA GERADA|🔴 MULTA GERADA)`)
	doubleBlankRe = regexp.MustCompile(`\n\s*\n`)

	multaTitleRe       = regexp.MustCompile(`(?i)(?:MULTA GERADA:?|🔴 MULTA GERADA:?)`)
	advertenciaTitleRe = regexp.MustCompile(`(?i)(?:ADVERTÊNCIA GERADA:?|⚠️ ADVERTÊNCIA GERADA:?)`)

	dateLineRe  = regexp.MustCompile(`(?i)Data:?\s*[^\n]+`)
	valueLineRe = regexp.MustCompile(`(?i)Valor:?\s*R?\$?\s*[0-9.,]+`)
	legalLineRe = regexp.MustCompile(`(?i)(?:Fundamentação|Base Legal|Artigo|Lei):?\s*[^\n]+`)
)

// replaceFirst removes only the first match of re, mirroring a non-global
// javascript-style replace.
func replaceFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}

// ParseReply inspects an assistant reply for a generated document block.
// When one is present it returns the reply formatted for display (styled
// title, end marker removed) and the structured fields extracted from the
// block. Replies without a document come back unchanged with a nil document.
func ParseReply(reply string) (string, *models.ParsedDocument) {
	advertenciaMatch := advertenciaStrictRe.FindString(reply)
	multaMatch := multaStrictRe.FindString(reply)

	if advertenciaMatch == "" {
		advertenciaMatch = advertenciaLooseRe.FindString(reply)
	}
	if multaMatch == "" {
		multaMatch = multaLooseRe.FindString(reply)
	}
	if advertenciaMatch == "" && multaMatch == "" {
		return reply, nil
	}

	isMulta := multaMatch != ""
	docText := advertenciaMatch
	docType := models.DocumentAdvertencia
	if isMulta {
		docText = multaMatch
		docType = models.DocumentMulta
	}

	doc := &models.ParsedDocument{
		Type:        docType,
		Date:        extractDate(docText),
		Description: extractDescription(docText, isMulta),
	}
	if isMulta {
		doc.Value = extractValue(docText)
	}
	if basis := extractLegalBasis(docText); basis != "" {
		doc.LegalBasis = basis
		if !strings.Contains(doc.Description, basis) {
			doc.Description += "\n\nFundamentação: " + basis
		}
	}

	return formatDisplay(reply, isMulta), doc
}

func extractDate(docText string) string {
	if m := dateFieldRe.FindStringSubmatch(docText); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareDateRe.FindStringSubmatch(docText); m != nil {
		return m[1]
	}
	return time.Now().Format("02/01/2006")
}

func extractValue(docText string) string {
	if m := valueFieldRe.FindStringSubmatch(docText); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareValueRe.FindStringSubmatch(docText); m != nil {
		return m[1]
	}
	return "0,00"
}

func extractDescription(docText string, isMulta bool) string {
	if m := reasonRe.FindStringSubmatch(docText); m != nil {
		// Multi-line captures can run into the end marker; drop it.
		return strings.TrimSpace(allMarkersRe.ReplaceAllString(m[1], ""))
	}

	// No labeled field; strip markers and labeled lines and use the rest.
	cleaned := allMarkersRe.ReplaceAllString(docText, "")
	cleaned = replaceFirst(dateLineRe, cleaned)
	cleaned = replaceFirst(valueLineRe, cleaned)
	cleaned = replaceFirst(legalLineRe, cleaned)
	cleaned = strings.TrimSpace(cleaned)
	cleaned = doubleBlankRe.ReplaceAllString(cleaned, "\n")
	if cleaned != "" {
		return cleaned
	}

	// Last resort: everything after the title marker.
	titleRe := advertenciaTitleRe
	if isMulta {
		titleRe = multaTitleRe
	}
	parts := titleRe.Split(docText, 2)
	if len(parts) > 1 {
		return strings.TrimSpace(parts[1])
	}
	return docText
}

func extractLegalBasis(docText string) string {
	if m := legalFieldRe.FindStringSubmatch(docText); m != nil {
		return strings.TrimSpace(allMarkersRe.ReplaceAllString(m[1], ""))
	}
	if legalKeywordsRe.MatchString(docText) {
		for _, sentence := range sentenceSplitRe.Split(docText, -1) {
			if legalKeywordsRe.MatchString(sentence) {
				return strings.TrimSpace(sentence)
			}
		}
	}
	return ""
}

var (
	displayMultaTitleRe       = regexp.MustCompile(`(?:🔴 )?MULTA GERADA:?`)
	displayAdvertenciaTitleRe = regexp.MustCompile(`(?:⚠️ )?ADVERTÊNCIA GERADA:?`)
)

// formatDisplay styles the first document title and removes the end marker.
func formatDisplay(reply string, isMulta bool) string {
	titleRe := displayAdvertenciaTitleRe
	styled := advertenciaDisplayTitle
	if isMulta {
		titleRe = displayMultaTitleRe
		styled = multaDisplayTitle
	}
	formatted := reply
	if loc := titleRe.FindStringIndex(reply); loc != nil {
		formatted = reply[:loc[0]] + styled + reply[loc[1]:]
	}
	return strings.Replace(formatted, "FIM DOCUMENTO", "", 1)
}

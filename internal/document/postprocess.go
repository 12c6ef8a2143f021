package document

import (
	"regexp"
	"strings"

	"github.com/sindicoapp/sindico/internal/models"
)

var (
	// art10Re matches the common misattribution of Art. 10 of the federal
	// condominium law to the internal bylaws.
	art10Re = regexp.MustCompile(`(?i)De acordo com o Regimento Interno, Art\. 10[^.]+ - É defeso a qualquer condômino`)

	photoMarkerRe  = regexp.MustCompile(`(?i)\[FOTO\(S\)\]|\[FOTO\]|\[FOTOS\]|\[FOTO\(s\)\]`)
	verifyMarkerRe = regexp.MustCompile(`(?i)\[VERIFICAR ARTIGO APLICÁVEL\]|\[VERIFICAR ARTIGO\]|\[ARTIGO APLICÁVEL\]`)
	tripleBlankRe  = regexp.MustCompile(`\n\s*\n\s*\n`)
	separatorRe    = regexp.MustCompile(`^[-_]{3,}$`)
)

const art10Correct = "De acordo com a Lei de Condomínio nº 4.591/64, Art. 10 - É defeso a qualquer condômino"

// PostProcess normalizes a generated document body: it fixes the Art. 10
// attribution, removes photo and verification placeholders, collapses blank
// runs and deduplicates the header block (condominium line, document title,
// horizontal rule). The function is idempotent.
func PostProcess(body string, docType models.DocumentType) string {
	body = art10Re.ReplaceAllString(body, art10Correct)
	body = photoMarkerRe.ReplaceAllString(body, "")
	body = verifyMarkerRe.ReplaceAllString(body, "Art. aplicável do regulamento")
	body = tripleBlankRe.ReplaceAllString(body, "\n\n")

	title := docType.Title()
	lines := strings.Split(body, "\n")
	processed := make([]string, 0, len(lines))

	foundCondominium := false
	foundTitle := false
	foundRule := false
	inBody := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Skip blank runs left behind by the marker removals.
		if trimmed == "" && len(processed) > 0 && strings.TrimSpace(processed[len(processed)-1]) == "" {
			continue
		}

		if !inBody {
			if foundCondominium && foundTitle && foundRule && strings.HasPrefix(trimmed, "Prezado") {
				inBody = true
				processed = append(processed, line)
				continue
			}
			if trimmed == "CONDOMÍNIO" {
				if !foundCondominium {
					foundCondominium = true
					processed = append(processed, line)
				}
				continue
			}
			if trimmed == title {
				if !foundTitle {
					foundTitle = true
					processed = append(processed, line)
				}
				continue
			}
			if separatorRe.MatchString(trimmed) {
				if !foundRule {
					foundRule = true
					processed = append(processed, line)
				}
				continue
			}
			processed = append(processed, line)
			continue
		}

		// Inside the body, repeated header lines are dropped.
		if trimmed == "CONDOMÍNIO" || trimmed == title {
			continue
		}
		processed = append(processed, line)
	}

	result := make([]string, 0, len(processed))
	lastBlank := false
	for _, line := range processed {
		if strings.TrimSpace(line) == "" {
			if !lastBlank {
				result = append(result, line)
				lastBlank = true
			}
			continue
		}
		result = append(result, line)
		lastBlank = false
	}
	return strings.Join(result, "\n")
}

package store

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/sindicoapp/sindico/internal/models"
)

// DefaultPageSize caps listing queries when the caller does not set a limit.
const DefaultPageSize = 50

// scanFlowState scans a flow state row via the given Scan function so the
// SQLite and Postgres stores share the decoding logic.
func scanFlowState(scan func(dest ...interface{}) error) (*models.FlowState, error) {
	var state models.FlowState
	var docType string
	var valuesJSON sql.NullString
	err := scan(&state.UserID, &state.AssistantID, &docType, &state.StepIndex,
		&valuesJSON, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}
	state.Type = models.DocumentType(docType)
	if valuesJSON.String != "" {
		state.Values = decodeValues(valuesJSON.String)
	}
	return &state, nil
}

// decodeValues parses the JSON values blob, falling back to an empty map so a
// corrupt row degrades to a restarted flow instead of a hard failure.
func decodeValues(raw string) map[string]string {
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return make(map[string]string)
	}
	return values
}

// normalizePage clamps paging parameters to sane bounds.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// likePattern builds a contains-match LIKE pattern, escaping nothing on the
// assumption that search terms are plain words.
func likePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return "%"
	}
	return "%" + search + "%"
}

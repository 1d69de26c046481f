package models

import (
	"bytes"
	"encoding/json"
)

// InputKind selects which record field is vectorized and which vision operation is used.
type InputKind string

// Supported input kinds.
const (
	InputKindImage InputKind = "image"
	InputKindText  InputKind = "text"
)

// SkillRequest is the custom skill / custom vectorizer request body.
type SkillRequest struct {
	Values []SkillRecord `json:"values" validate:"required,dive"`
}

// SkillRecord is one unit of work. RecordID is kept as raw JSON so any scalar is echoed verbatim.
type SkillRecord struct {
	RecordID json.RawMessage  `json:"recordId" validate:"json_scalar"` //nolint:tagliatelle // API contract
	Data     *SkillRecordData `json:"data" validate:"required"`
}

// SkillRecordData holds the record input. Exactly one field is used, depending on the route.
type SkillRecordData struct {
	ImageURL string `json:"imageUrl,omitempty"` //nolint:tagliatelle // API contract
	Text     string `json:"text,omitempty"`
}

// Input returns the value for the given kind.
func (d *SkillRecordData) Input(kind InputKind) string {
	if d == nil {
		return ""
	}

	if kind == InputKindText {
		return d.Text
	}

	return d.ImageURL
}

// SkillResponse is the batch response; Values has the same length and order as the request.
type SkillResponse struct {
	Values []SkillResponseRecord `json:"values"`
}

// SkillResponseRecord is the result for one input record.
// Errors and Warnings serialize as null when empty; Data.Vector is null on failure.
type SkillResponseRecord struct {
	RecordID json.RawMessage         `json:"recordId"` //nolint:tagliatelle // API contract
	Data     SkillResponseRecordData `json:"data"`
	Errors   []SkillMessage          `json:"errors"`
	Warnings []SkillMessage          `json:"warnings"`
}

// SkillResponseRecordData carries the embedding.
type SkillResponseRecordData struct {
	Vector []float64 `json:"vector"`
}

// SkillMessage is an error or warning descriptor.
type SkillMessage struct {
	Message string `json:"message"`
}

// IsJSONScalar reports whether raw is a JSON string, number, or boolean.
func IsJSONScalar(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}

	switch trimmed[0] {
	case '{', '[', 'n':
		// object, array, null
		return false
	default:
		return json.Valid(trimmed)
	}
}

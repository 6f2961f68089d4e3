package entity

import "encoding/json"

// Task output payloads, stored on the task row once a stage completes and
// served verbatim from the task output endpoint. Field names are part of
// the external contract.

// ExtractionOutput is the vlm_extraction stage payload.
type ExtractionOutput struct {
	OutputText string `json:"output_text"`
}

// NEROutput is the ner_processing stage payload. The inner document keeps
// the provider's chat-completions shape; consumers decode
// choices[0].message.content themselves.
type NEROutput struct {
	OutputJSON json.RawMessage `json:"output_json"`
}

// ComparisonOutput is the json_comparison stage payload.
type ComparisonOutput struct {
	OutputComparisonJSON ComparisonEnvelope `json:"output_comparison_json"`
}

// ComparisonEnvelope wraps the comparison record list.
type ComparisonEnvelope struct {
	Entities []ComparisonRecord `json:"entities"`
}

// ReviewOutput is the vlm_review stage payload. The inner document is
// either an {entities: [...]} envelope or the full chat-completions shape
// with the envelope in its content.
type ReviewOutput struct {
	OutputReviewJSON json.RawMessage `json:"output_review_json"`
}

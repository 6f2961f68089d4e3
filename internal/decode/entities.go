package decode

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docscreen-io/docscreen/internal/entity"
)

// EntitySet decodes NER content into an entity list.
//
// Content that is not parseable JSON at all degrades to an empty set with a
// logged warning: upstream models do return prose despite a JSON response
// format, and the contract requires that case to surface as "no entities",
// not as a failed stage. Content that parses but is not an
// {entities: [...]} object is a hard ErrMalformedEntityData. Individual
// records missing entity_name or entity_value are skipped with a warning.
func EntitySet(content []byte, logger *slog.Logger) ([]entity.Entity, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var probe any
	if err := json.Unmarshal(content, &probe); err != nil {
		logger.Warn("decode.entities.unparseable_content", "error", err, "content_bytes", len(content))
		return []entity.Entity{}, nil
	}

	items, err := envelopeItems(content)
	if err != nil {
		return nil, err
	}

	out := make([]entity.Entity, 0, len(items))
	for i, item := range items {
		name, okName := item["entity_name"].(string)
		value, okValue := item["entity_value"].(string)
		if !okName || !okValue || strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
			logger.Warn("decode.entities.record_skipped", "index", i, "reason", "missing entity_name or entity_value")
			continue
		}
		e := entity.Entity{Name: name, Value: value}
		if c, ok := confidenceOf(item["confidence"]); ok {
			e.Confidence = &c
		}
		out = append(out, e)
	}
	return out, nil
}

// ReviewVerdicts decodes the review model's content into a verdict set.
// Same envelope rules as EntitySet; records without a usable reviewed field
// keep their raw value and normalize to "no" during reconciliation.
func ReviewVerdicts(content []byte, logger *slog.Logger) ([]entity.ReviewVerdict, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var probe any
	if err := json.Unmarshal(content, &probe); err != nil {
		logger.Warn("decode.review.unparseable_content", "error", err, "content_bytes", len(content))
		return []entity.ReviewVerdict{}, nil
	}

	items, err := envelopeItems(content)
	if err != nil {
		return nil, err
	}

	out := make([]entity.ReviewVerdict, 0, len(items))
	for i, item := range items {
		name, okName := item["entity_name"].(string)
		value, okValue := item["entity_value"].(string)
		if !okName || !okValue || strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
			logger.Warn("decode.review.record_skipped", "index", i, "reason", "missing entity_name or entity_value")
			continue
		}
		reviewed, _ := item["reviewed"].(string)
		out = append(out, entity.ReviewVerdict{Name: name, Value: value, Reviewed: reviewed})
	}
	return out, nil
}

// ComparisonRecords decodes a stored comparison task output
// ({entities: [ComparisonRecord...]}) back into typed records.
func ComparisonRecords(payload []byte) ([]entity.ComparisonRecord, error) {
	if err := ValidateJSONAgainstSchema(buildEntityEnvelopeSchema(), payload); err != nil {
		return nil, malformed("comparison payload", err)
	}
	var env struct {
		Entities []entity.ComparisonRecord `json:"entities"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, malformed("comparison payload", err)
	}
	if env.Entities == nil {
		env.Entities = []entity.ComparisonRecord{}
	}
	return env.Entities, nil
}

// envelopeItems validates the {entities: [...]} shape and returns the raw
// record maps.
func envelopeItems(content []byte) ([]map[string]any, error) {
	if err := ValidateJSONAgainstSchema(buildEntityEnvelopeSchema(), content); err != nil {
		return nil, malformed("entity payload", err)
	}
	var env struct {
		Entities []map[string]any `json:"entities"`
	}
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, malformed("entity payload", err)
	}
	return env.Entities, nil
}

// confidenceOf accepts the number-or-numeric-string confidence shapes seen
// in the wild.
func confidenceOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

package entity

import "strings"

// Comparison verdicts for a single entity-level fact.
const (
	ComparisonMatch    = "match"
	ComparisonAddition = "addition"
	ComparisonOmission = "omission"
)

// Reviewed verdicts attached to a ComparisonRecord.
const (
	ReviewedYes = "yes"
	ReviewedNo  = "no"
	ReviewedNA  = "n/a"
)

// Entity is one extracted name/value fact with optional confidence.
type Entity struct {
	Name       string   `json:"entity_name"`
	Value      string   `json:"entity_value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Key returns the normalized composite key used for matching: lowercased,
// whitespace-trimmed name and value joined as name::value. Two entities with
// the same value under different names are distinct facts.
func (e Entity) Key() string {
	return NormalizedKey(e.Name, e.Value)
}

// NormalizedKey builds the case- and whitespace-insensitive composite key.
func NormalizedKey(name, value string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "::" + strings.ToLower(strings.TrimSpace(value))
}

// ComparisonRecord is one entity-level verdict between two extraction runs.
// Name and Value keep the casing of whichever input first produced the key.
type ComparisonRecord struct {
	Name       string   `json:"entity_name"`
	Value      string   `json:"entity_value"`
	Comparison string   `json:"comparison"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Key returns the record's normalized composite key.
func (r ComparisonRecord) Key() string {
	return NormalizedKey(r.Name, r.Value)
}

// ReviewRecord is a ComparisonRecord annotated with a reviewed verdict.
// Reviewed is "n/a" exactly when Comparison is "match".
type ReviewRecord struct {
	ComparisonRecord
	Reviewed string `json:"reviewed"`
}

// ReviewVerdict is one entry of the review model's verdict set.
type ReviewVerdict struct {
	Name     string `json:"entity_name"`
	Value    string `json:"entity_value"`
	Reviewed string `json:"reviewed"`
}

// Key returns the verdict's normalized composite key.
func (v ReviewVerdict) Key() string {
	return NormalizedKey(v.Name, v.Value)
}

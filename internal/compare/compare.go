// Package compare implements the entity-set reconciliation core: a
// three-way diff between two extraction runs and the merge of a review
// verdict set onto that diff. Both operations are pure and deterministic.
package compare

import (
	"strings"

	"github.com/docscreen-io/docscreen/internal/entity"
)

// Compare classifies every fact in setA and setB as match, addition or
// omission. Matching is case- and whitespace-insensitive on the joint
// name::value key. On a match, setA is authoritative for displayed casing
// and confidence. Records come out in setA order followed by setB-only
// keys in setB order, so output is reproducible for a given input pair.
//
// Entities missing a name or value (after trimming) are skipped: partial
// extraction is expected from imperfect upstream models. Empty against
// empty yields no records at all, which readers treat as a trivial match.
func Compare(setA, setB []entity.Entity) []entity.ComparisonRecord {
	keysA := indexByKey(setA)
	keysB := indexByKey(setB)

	records := make([]entity.ComparisonRecord, 0, len(keysA.order)+len(keysB.order))

	for _, k := range keysA.order {
		a := keysA.byKey[k]
		rec := entity.ComparisonRecord{
			Name:       a.Name,
			Value:      a.Value,
			Confidence: a.Confidence,
		}
		if _, ok := keysB.byKey[k]; ok {
			rec.Comparison = entity.ComparisonMatch
		} else {
			rec.Comparison = entity.ComparisonAddition
		}
		records = append(records, rec)
	}

	for _, k := range keysB.order {
		if _, ok := keysA.byKey[k]; ok {
			continue
		}
		b := keysB.byKey[k]
		records = append(records, entity.ComparisonRecord{
			Name:       b.Name,
			Value:      b.Value,
			Comparison: entity.ComparisonOmission,
			Confidence: b.Confidence,
		})
	}

	return records
}

type entityIndex struct {
	byKey map[string]entity.Entity
	order []string // insertion order, first occurrence wins
}

func indexByKey(set []entity.Entity) entityIndex {
	idx := entityIndex{byKey: make(map[string]entity.Entity, len(set))}
	for _, e := range set {
		if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Value) == "" {
			continue
		}
		k := e.Key()
		if _, seen := idx.byKey[k]; seen {
			continue
		}
		idx.byKey[k] = e
		idx.order = append(idx.order, k)
	}
	return idx
}

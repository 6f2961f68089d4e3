package compare

import (
	"strings"

	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
)

// Reconcile merges a comparison result with the review model's verdict set.
// Match rows are always reviewed "n/a"; every other row looks its normalized
// key up in the verdict set and defaults to "no" when absent. Any verdict
// other than "yes" (case-insensitive) counts as "no".
//
// Both inputs must come from completed tasks. A nil input means a dependency
// did not run and is rejected rather than silently treated as empty; a
// non-nil empty verdict set is valid and simply defaults everything to "no".
func Reconcile(comparisons []entity.ComparisonRecord, reviewed []entity.ReviewVerdict) ([]entity.ReviewRecord, error) {
	if comparisons == nil {
		return nil, common.WrapError(common.ErrMissingDependency, "comparison result absent")
	}
	if reviewed == nil {
		return nil, common.WrapError(common.ErrMissingDependency, "review verdicts absent")
	}

	verdicts := make(map[string]string, len(reviewed))
	for _, v := range reviewed {
		if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.Value) == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(v.Reviewed), entity.ReviewedYes) {
			verdicts[v.Key()] = entity.ReviewedYes
		} else {
			verdicts[v.Key()] = entity.ReviewedNo
		}
	}

	out := make([]entity.ReviewRecord, 0, len(comparisons))
	for _, rec := range comparisons {
		rr := entity.ReviewRecord{ComparisonRecord: rec}
		if rec.Comparison == entity.ComparisonMatch {
			rr.Reviewed = entity.ReviewedNA
		} else if v, ok := verdicts[rec.Key()]; ok {
			rr.Reviewed = v
		} else {
			rr.Reviewed = entity.ReviewedNo
		}
		out = append(out, rr)
	}
	return out, nil
}

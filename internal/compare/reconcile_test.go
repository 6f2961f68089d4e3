package compare

import (
	"errors"
	"testing"

	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
)

func TestReconcileMatchIsAlwaysNA(t *testing.T) {
	comparisons := []entity.ComparisonRecord{
		{Name: "Name", Value: "John", Comparison: entity.ComparisonMatch},
	}
	// Even an explicit "yes" for a match row is ignored.
	reviewed := []entity.ReviewVerdict{{Name: "Name", Value: "John", Reviewed: "yes"}}

	got, err := Reconcile(comparisons, reviewed)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Reviewed != entity.ReviewedNA {
		t.Errorf("reviewed = %s, want n/a", got[0].Reviewed)
	}
}

func TestReconcileVerdictLookupAndDefault(t *testing.T) {
	comparisons := []entity.ComparisonRecord{
		{Name: "DOB", Value: "1990-01-01", Comparison: entity.ComparisonAddition},
		{Name: "Passport", Value: "X123", Comparison: entity.ComparisonOmission},
		{Name: "Address", Value: "1 Main St", Comparison: entity.ComparisonAddition},
	}
	reviewed := []entity.ReviewVerdict{
		{Name: "dob", Value: " 1990-01-01 ", Reviewed: "YES"},
		{Name: "Passport", Value: "X123", Reviewed: "maybe"},
	}

	got, err := Reconcile(comparisons, reviewed)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{entity.ReviewedYes, entity.ReviewedNo, entity.ReviewedNo}
	for i, w := range want {
		if got[i].Reviewed != w {
			t.Errorf("row %d reviewed = %s, want %s", i, got[i].Reviewed, w)
		}
	}
}

func TestReconcileNilInputsRejected(t *testing.T) {
	if _, err := Reconcile(nil, []entity.ReviewVerdict{}); !errors.Is(err, common.ErrMissingDependency) {
		t.Errorf("nil comparisons: err = %v, want ErrMissingDependency", err)
	}
	if _, err := Reconcile([]entity.ComparisonRecord{}, nil); !errors.Is(err, common.ErrMissingDependency) {
		t.Errorf("nil verdicts: err = %v, want ErrMissingDependency", err)
	}
}

func TestReconcileEmptyVerdictSetDefaultsNo(t *testing.T) {
	comparisons := []entity.ComparisonRecord{
		{Name: "DOB", Value: "1990-01-01", Comparison: entity.ComparisonAddition},
	}
	got, err := Reconcile(comparisons, []entity.ReviewVerdict{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Reviewed != entity.ReviewedNo {
		t.Errorf("reviewed = %s, want no", got[0].Reviewed)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	comparisons := Compare(
		[]entity.Entity{{Name: "Name", Value: "John"}, {Name: "DOB", Value: "1990"}},
		[]entity.Entity{{Name: "Name", Value: "John"}, {Name: "ID", Value: "7"}},
	)
	reviewed := []entity.ReviewVerdict{{Name: "DOB", Value: "1990", Reviewed: "yes"}}

	first, err := Reconcile(comparisons, reviewed)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Reconcile(comparisons, reviewed)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("length diverged: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("row %d diverged: %+v vs %+v", j, first[j], again[j])
			}
		}
	}
}

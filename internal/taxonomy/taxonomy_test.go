package taxonomy_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/JaimeStill/triage/internal/taxonomy"
)

func ptr(s string) *string { return &s }

func TestDefault(t *testing.T) {
	tx := taxonomy.Default()

	want := []string{"pathology", "imaging", "laboratory", "clinical", "treatment", "surgical"}
	if got := tx.Categories(); !slices.Equal(got, want) {
		t.Errorf("categories: got %v, want %v", got, want)
	}
	if got := tx.Labels(); !slices.Equal(got, []string{"cancer_core", "cancer_adjacent", "non_cancer"}) {
		t.Errorf("labels: got %v", got)
	}
	if !tx.IsReviewedStatus(taxonomy.StatusReviewed) || !tx.IsReviewedStatus(taxonomy.StatusUnreviewed) {
		t.Error("reviewed statuses missing")
	}
	if len(tx.Subcategories()) != 32 {
		t.Errorf("subcategories: got %d, want 32", len(tx.Subcategories()))
	}
}

func TestBelongs(t *testing.T) {
	tx := taxonomy.Default()

	tests := []struct {
		category, subcategory string
		want                  bool
	}{
		{"pathology", "biopsy", true},
		{"imaging", "mri", true},
		{"imaging", "biopsy", false},
		{"", "biopsy", false},
		{"laboratory", "unknown", false},
	}

	for _, tt := range tests {
		if got := tx.Belongs(tt.category, tt.subcategory); got != tt.want {
			t.Errorf("Belongs(%q, %q) = %v, want %v", tt.category, tt.subcategory, got, tt.want)
		}
	}
}

func TestValidatePair(t *testing.T) {
	tx := taxonomy.Default()

	tests := []struct {
		name        string
		category    *string
		subcategory *string
		wantErr     error
	}{
		{"both nil", nil, nil, nil},
		{"category only", ptr("clinical"), nil, nil},
		{"valid pair", ptr("surgical"), ptr("operative_note"), nil},
		{"unknown category", ptr("radiology"), nil, taxonomy.ErrUnknownCategory},
		{"unknown subcategory", ptr("imaging"), ptr("xray2"), taxonomy.ErrUnknownSubcategory},
		{"orphan", nil, ptr("ct"), taxonomy.ErrSubcategoryOrphan},
		{"mismatch", ptr("laboratory"), ptr("ct"), taxonomy.ErrSubcategoryMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tx.ValidatePair(tt.category, tt.subcategory)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateLabel(t *testing.T) {
	tx := taxonomy.Default()

	if err := tx.ValidateLabel("cancer_adjacent"); err != nil {
		t.Errorf("valid label rejected: %v", err)
	}
	if err := tx.ValidateLabel("benign"); !errors.Is(err, taxonomy.ErrUnknownLabel) {
		t.Errorf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "categories: [unclosed"},
		{"no categories", "labels: [a]"},
		{"no labels", "categories:\n  - name: a\n    subcategories: [x]"},
		{"duplicate category", "labels: [l]\ncategories:\n  - name: a\n  - name: a"},
		{"shared subcategory", "labels: [l]\ncategories:\n  - name: a\n    subcategories: [x]\n  - name: b\n    subcategories: [x]"},
		{"unnamed category", "labels: [l]\ncategories:\n  - subcategories: [x]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := taxonomy.Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	tx := taxonomy.Default()
	labels := tx.Labels()
	labels[0] = "mutated"

	if !tx.IsLabel("cancer_core") {
		t.Error("mutating Labels() result changed the taxonomy")
	}
}

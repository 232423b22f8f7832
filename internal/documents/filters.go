package documents

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JaimeStill/triage/internal/taxonomy"
	"github.com/JaimeStill/triage/pkg/query"
)

// Sort orders accepted by the index.
const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"

	DefaultSort  = "created_at"
	DefaultOrder = OrderDesc
)

// sortFields maps sortable wire names to projected fields.
var sortFields = map[string]string{
	"created_at":                "CreatedAt",
	"updated_at":                "UpdatedAt",
	"document_date":             "DocumentDate",
	"filename":                  "Filename",
	"category":                  "Category",
	"subcategory":               "Subcategory",
	"classification_confidence": "ClassificationConfidence",
}

// SortFields returns the accepted sort values.
func SortFields() []string {
	return []string{
		"created_at", "updated_at", "document_date", "filename",
		"category", "subcategory", "classification_confidence",
	}
}

// Filters holds the document index criteria. Nil fields are not applied.
// After Normalize, Sort and Order always hold effective values.
type Filters struct {
	Category       *string `json:"category,omitempty"`
	Subcategory    *string `json:"subcategory,omitempty"`
	Classification *string `json:"classification,omitempty"`
	StartDate      *Date   `json:"start_date,omitempty"`
	EndDate        *Date   `json:"end_date,omitempty"`
	ReviewedStatus *string `json:"reviewed_status,omitempty"`
	Sort           string  `json:"sort"`
	Order          string  `json:"order"`
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Blank parameters are treated as absent. Malformed dates fail with ErrInvalidFilter.
func FiltersFromQuery(values url.Values) (Filters, error) {
	f := Filters{
		Category:       param(values, "category"),
		Subcategory:    param(values, "subcategory"),
		Classification: param(values, "classification"),
		ReviewedStatus: param(values, "reviewed_status"),
	}
	if s := param(values, "sort"); s != nil {
		f.Sort = *s
	}
	if o := param(values, "order"); o != nil {
		f.Order = *o
	}

	var err error
	if f.StartDate, err = dateParam(values, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = dateParam(values, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func param(values url.Values, key string) *string {
	v := strings.TrimSpace(values.Get(key))
	if v == "" {
		return nil
	}
	return &v
}

func dateParam(values url.Values, key string) (*Date, error) {
	v := param(values, key)
	if v == nil {
		return nil, nil
	}
	d, err := ParseDate(*v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD: %q", ErrInvalidFilter, key, *v)
	}
	return &d, nil
}

// Normalize validates every criterion against tx and fills the sort
// defaults. Order is upper-cased.
func (f *Filters) Normalize(tx *taxonomy.Taxonomy) error {
	if f.Category != nil && !tx.IsCategory(*f.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, *f.Category)
	}
	if f.Subcategory != nil && !tx.IsSubcategory(*f.Subcategory) {
		return fmt.Errorf("%w: unknown subcategory %q", ErrInvalidFilter, *f.Subcategory)
	}
	if f.Classification != nil && !tx.IsLabel(*f.Classification) {
		return fmt.Errorf("%w: unknown classification %q", ErrInvalidFilter, *f.Classification)
	}
	if f.ReviewedStatus != nil && !tx.IsReviewedStatus(*f.ReviewedStatus) {
		return fmt.Errorf("%w: unknown reviewed_status %q", ErrInvalidFilter, *f.ReviewedStatus)
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(f.EndDate.Time) {
		return fmt.Errorf("%w: start_date %s is after end_date %s", ErrInvalidFilter, f.StartDate, f.EndDate)
	}

	if f.Sort == "" {
		f.Sort = DefaultSort
	}
	if _, ok := sortFields[f.Sort]; !ok {
		return fmt.Errorf("%w: cannot sort by %q", ErrInvalidFilter, f.Sort)
	}

	if f.Order == "" {
		f.Order = DefaultOrder
	}
	f.Order = strings.ToUpper(f.Order)
	if f.Order != OrderAsc && f.Order != OrderDesc {
		return fmt.Errorf("%w: order must be ASC or DESC: %q", ErrInvalidFilter, f.Order)
	}

	return nil
}

// Unmatchable reports whether the category and subcategory criteria
// exclude each other, so no document can match.
func (f *Filters) Unmatchable(tx *taxonomy.Taxonomy) bool {
	return f.Category != nil && f.Subcategory != nil && !tx.Belongs(*f.Category, *f.Subcategory)
}

// Apply adds filter conditions and ordering to a query builder.
// The id tiebreak keeps ordering deterministic.
func (f *Filters) Apply(b *query.Builder) *query.Builder {
	b.
		WhereEquals("Category", f.Category).
		WhereEquals("Subcategory", f.Subcategory).
		WhereEquals("Classification", f.Classification).
		WhereOnOrAfter("DocumentDate", f.StartDate).
		WhereOnOrBefore("DocumentDate", f.EndDate)

	if f.ReviewedStatus != nil {
		b.WhereNull("ReviewedAt", *f.ReviewedStatus == taxonomy.StatusUnreviewed)
	}

	return b.
		OrderByFields(query.SortField{Field: sortFields[f.Sort], Descending: f.Order == OrderDesc}).
		ThenBy(query.SortField{Field: "ID"})
}

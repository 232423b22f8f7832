// Package taxonomy holds the closed vocabularies for document categories,
// subcategories, classification labels, and reviewed statuses.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var embedded []byte

var (
	ErrUnknownCategory     = errors.New("unknown category")
	ErrUnknownSubcategory  = errors.New("unknown subcategory")
	ErrSubcategoryMismatch = errors.New("subcategory does not belong to category")
	ErrSubcategoryOrphan   = errors.New("subcategory requires a category")
	ErrUnknownLabel        = errors.New("unknown classification")
	ErrUnknownStatus       = errors.New("unknown reviewed status")
)

// Reviewed statuses accepted by the document filter.
const (
	StatusReviewed   = "reviewed"
	StatusUnreviewed = "unreviewed"
)

// Category is a top-level document category and its subcategories.
type Category struct {
	Name          string   `yaml:"name"`
	Subcategories []string `yaml:"subcategories"`
}

// Taxonomy is a validated set of vocabularies.
type Taxonomy struct {
	categories []Category
	labels     []string
	statuses   []string

	parent map[string]string
}

type document struct {
	Categories       []Category `yaml:"categories"`
	Labels           []string   `yaml:"labels"`
	ReviewedStatuses []string   `yaml:"reviewed_statuses"`
}

var standard = must(Parse(embedded))

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	return standard
}

// Parse decodes and validates a taxonomy YAML document.
// Subcategory names must be unique across categories.
func Parse(data []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	if len(doc.Categories) == 0 {
		return nil, errors.New("taxonomy: no categories")
	}
	if len(doc.Labels) == 0 {
		return nil, errors.New("taxonomy: no classification labels")
	}

	t := &Taxonomy{
		categories: doc.Categories,
		labels:     doc.Labels,
		statuses:   doc.ReviewedStatuses,
		parent:     make(map[string]string),
	}

	seen := make(map[string]bool)
	for _, c := range doc.Categories {
		if c.Name == "" {
			return nil, errors.New("taxonomy: category without a name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("taxonomy: duplicate category %q", c.Name)
		}
		seen[c.Name] = true

		for _, s := range c.Subcategories {
			if owner, dup := t.parent[s]; dup {
				return nil, fmt.Errorf("taxonomy: subcategory %q listed under %q and %q", s, owner, c.Name)
			}
			t.parent[s] = c.Name
		}
	}

	return t, nil
}

func must(t *Taxonomy, err error) *Taxonomy {
	if err != nil {
		panic(err)
	}
	return t
}

// Categories returns the category names in declaration order.
func (t *Taxonomy) Categories() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

// Subcategories returns every subcategory name in declaration order.
func (t *Taxonomy) Subcategories() []string {
	var names []string
	for _, c := range t.categories {
		names = append(names, c.Subcategories...)
	}
	return names
}

// Labels returns the classification labels.
func (t *Taxonomy) Labels() []string {
	return slices.Clone(t.labels)
}

// ReviewedStatuses returns the reviewed status filter values.
func (t *Taxonomy) ReviewedStatuses() []string {
	return slices.Clone(t.statuses)
}

func (t *Taxonomy) IsCategory(name string) bool {
	return slices.ContainsFunc(t.categories, func(c Category) bool { return c.Name == name })
}

func (t *Taxonomy) IsSubcategory(name string) bool {
	_, ok := t.parent[name]
	return ok
}

func (t *Taxonomy) IsLabel(label string) bool {
	return slices.Contains(t.labels, label)
}

func (t *Taxonomy) IsReviewedStatus(status string) bool {
	return slices.Contains(t.statuses, status)
}

// Belongs reports whether subcategory is scoped to category.
func (t *Taxonomy) Belongs(category, subcategory string) bool {
	return t.parent[subcategory] == category && category != ""
}

// ValidatePair checks a category/subcategory combination as stored on a document.
// Either may be nil; a subcategory without a category is rejected.
func (t *Taxonomy) ValidatePair(category, subcategory *string) error {
	if category != nil && !t.IsCategory(*category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, *category)
	}
	if subcategory == nil {
		return nil
	}
	if !t.IsSubcategory(*subcategory) {
		return fmt.Errorf("%w: %q", ErrUnknownSubcategory, *subcategory)
	}
	if category == nil {
		return fmt.Errorf("%w: %q", ErrSubcategoryOrphan, *subcategory)
	}
	if !t.Belongs(*category, *subcategory) {
		return fmt.Errorf("%w: %q is not a %s subcategory", ErrSubcategoryMismatch, *subcategory, *category)
	}
	return nil
}

// ValidateLabel checks a classification label.
func (t *Taxonomy) ValidateLabel(label string) error {
	if !t.IsLabel(label) {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return nil
}

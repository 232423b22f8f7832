package classifications_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/triage/internal/classifications"
	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/predictor"
)

var columns = []string{
	"id", "patient_id", "filename", "storage_key", "content_type",
	"document_date", "is_handwritten", "category", "subcategory", "facility",
	"classification", "classification_confidence", "classification_reason",
	"classification_version", "approved_for_extraction", "reviewed_at",
	"created_at", "updated_at",
}

var created = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// classifiedRow is the row RETURNING yields after a verdict is written.
func classifiedRow(id, classification, category, subcategory string, version int64) []driver.Value {
	return []driver.Value{
		id, "p1", id + ".pdf", "patients/p1/" + id + ".pdf", "application/pdf",
		nil, nil, category, subcategory, nil,
		classification, 0.9, "model rationale",
		version, false, nil,
		created, created,
	}
}

func pending(id string) documents.Document {
	return documents.Document{
		ID:         id,
		PatientID:  "p1",
		Filename:   id + ".pdf",
		StorageKey: "patients/p1/" + id + ".pdf",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func classified(id, classification, category, subcategory string) documents.Document {
	d := pending(id)
	d.Classification = ptr(classification)
	d.ClassificationConfidence = ptr(0.7)
	d.Category = ptr(category)
	d.Subcategory = ptr(subcategory)
	d.ClassificationVersion = 1
	return d
}

// fakeDocuments serves Find from findFn and leaves the rest unimplemented.
type fakeDocuments struct {
	documents.System
	findFn func(ctx context.Context, patientID, documentID string) (*documents.Document, error)
}

func (f *fakeDocuments) Find(ctx context.Context, patientID, documentID string) (*documents.Document, error) {
	return f.findFn(ctx, patientID, documentID)
}

func staticDocuments(docs ...documents.Document) *fakeDocuments {
	byID := make(map[string]documents.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return &fakeDocuments{
		findFn: func(_ context.Context, patientID, documentID string) (*documents.Document, error) {
			d, ok := byID[documentID]
			if !ok || d.PatientID != patientID {
				return nil, documents.ErrNotFound
			}
			return &d, nil
		},
	}
}

type fakePredictor struct {
	calls     atomic.Int32
	predictFn func(ctx context.Context, doc documents.Document) (*predictor.Verdict, error)
}

func (f *fakePredictor) Predict(ctx context.Context, doc documents.Document) (*predictor.Verdict, error) {
	f.calls.Add(1)
	return f.predictFn(ctx, doc)
}

func verdicts(byID map[string][3]string) *fakePredictor {
	return &fakePredictor{
		predictFn: func(_ context.Context, doc documents.Document) (*predictor.Verdict, error) {
			v, ok := byID[doc.ID]
			if !ok {
				return nil, predictor.ErrUnavailable
			}
			return &predictor.Verdict{
				Classification: v[0],
				Confidence:     ptr(0.9),
				Reason:         ptr("model rationale"),
				Category:       ptr(v[1]),
				Subcategory:    ptr(v[2]),
			}, nil
		},
	}
}

var (
	monotonicUpdatedAt = regexp.MustCompile(`updated_at\s*=\s*GREATEST\(updated_at,\s*NOW\(\)\)`)
	assignsUpdatedAt   = regexp.MustCompile(`updated_at\s*=`)
	assignsApproval    = regexp.MustCompile(`approved_for_extraction\s*=`)
)

// guardedWrites matches like sqlmock.QueryMatcherRegexp and rejects a
// verdict write that touches approval or can move updated_at backwards.
var guardedWrites = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	if err := sqlmock.QueryMatcherRegexp.Match(expected, actual); err != nil {
		return err
	}
	if !strings.Contains(actual, "UPDATE documents") {
		return nil
	}
	if assignsApproval.MatchString(actual) {
		return fmt.Errorf("verdict write assigns approved_for_extraction: %s", actual)
	}
	if len(assignsUpdatedAt.FindAllString(actual, -1)) != 1 || !monotonicUpdatedAt.MatchString(actual) {
		return fmt.Errorf("verdict write must keep updated_at monotonic: %s", actual)
	}
	return nil
})

func TestGuardedWrites(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"monotonic", "UPDATE documents SET classification = $4, updated_at = GREATEST(updated_at, NOW()) WHERE id = $1", false},
		{"clears approval", "UPDATE documents SET approved_for_extraction = FALSE, updated_at = GREATEST(updated_at, NOW()) WHERE id = $1", true},
		{"plain now", "UPDATE documents SET classification = $4, updated_at = NOW() WHERE id = $1", true},
		{"select", "SELECT id FROM documents WHERE classification IS NULL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guardedWrites.Match("documents", tt.sql)
			if (err != nil) != tt.wantErr {
				t.Errorf("Match() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newSystem(t *testing.T, docs documents.System, p predictor.Predictor, cfg classifications.Config) (classifications.System, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(guardedWrites))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize config: %v", err)
	}
	return classifications.New(db, docs, p, &cfg, nil, discard()), mock
}

func TestClassifyShortCircuits(t *testing.T) {
	docs := staticDocuments(classified("doc-1", "cancer_core", "pathology", "biopsy"))
	pred := verdicts(nil)
	sys, mock := newSystem(t, docs, pred, classifications.Config{})

	for range 2 {
		res, err := sys.Classify(context.Background(), "p1", "doc-1", false)
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if !res.PreviouslyClassified || *res.Classification != "cancer_core" || *res.Category != "pathology" {
			t.Errorf("unexpected result: %+v", res)
		}
	}

	if n := pred.calls.Load(); n != 0 {
		t.Errorf("predictor calls = %d, want 0", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyPersistsVerdict(t *testing.T) {
	docs := staticDocuments(pending("doc-1"))
	pred := verdicts(map[string][3]string{"doc-1": {"cancer_adjacent", "laboratory", "tumor_markers"}})
	sys, mock := newSystem(t, docs, pred, classifications.Config{})

	mock.ExpectQuery(`classification_version = \$3 AND classification IS NULL RETURNING`).
		WithArgs(
			"doc-1", "p1", 0,
			"cancer_adjacent", 0.9, "model rationale",
			"laboratory", "tumor_markers", nil,
			nil, nil,
		).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(classifiedRow("doc-1", "cancer_adjacent", "laboratory", "tumor_markers", 1)...))

	res, err := sys.Classify(context.Background(), "p1", "doc-1", false)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.PreviouslyClassified {
		t.Error("fresh verdict reported as previously classified")
	}
	if res.DocumentID != "doc-1" || *res.Classification != "cancer_adjacent" || *res.Subcategory != "tumor_markers" {
		t.Errorf("unexpected result: %+v", res)
	}
	if *res.Confidence != 0.9 || *res.Reason != "model rationale" {
		t.Errorf("unexpected confidence or reason: %+v", res)
	}
	if n := pred.calls.Load(); n != 1 {
		t.Errorf("predictor calls = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyForceReclassifies(t *testing.T) {
	docs := staticDocuments(classified("doc-1", "non_cancer", "imaging", "xray"))
	pred := verdicts(map[string][3]string{"doc-1": {"cancer_core", "imaging", "pet"}})
	sys, mock := newSystem(t, docs, pred, classifications.Config{})

	mock.ExpectQuery(`classification_version = \$3 RETURNING`).
		WithArgs("doc-1", "p1", 1, "cancer_core", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"imaging", "pet", nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(classifiedRow("doc-1", "cancer_core", "imaging", "pet", 2)...))

	res, err := sys.Classify(context.Background(), "p1", "doc-1", true)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.PreviouslyClassified || *res.Classification != "cancer_core" || *res.Subcategory != "pet" {
		t.Errorf("stored result should reflect the new verdict: %+v", res)
	}
	if n := pred.calls.Load(); n != 1 {
		t.Errorf("predictor calls = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyForceKeepsApproval(t *testing.T) {
	doc := classified("doc-1", "non_cancer", "imaging", "xray")
	doc.ApprovedForExtraction = true
	doc.UpdatedAt = created.Add(time.Hour)
	docs := staticDocuments(doc)
	pred := verdicts(map[string][3]string{"doc-1": {"cancer_core", "pathology", "biopsy"}})
	sys, mock := newSystem(t, docs, pred, classifications.Config{})

	stored := classifiedRow("doc-1", "cancer_core", "pathology", "biopsy", 2)
	stored[14] = true
	stored[17] = doc.UpdatedAt

	mock.ExpectQuery(`classification_version = \$3 RETURNING`).
		WithArgs("doc-1", "p1", 1, "cancer_core", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"pathology", "biopsy", nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(stored...))

	res, err := sys.Classify(context.Background(), "p1", "doc-1", true)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if *res.Classification != "cancer_core" || *res.Category != "pathology" {
		t.Errorf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyLostRace(t *testing.T) {
	t.Run("unforced returns the winning verdict", func(t *testing.T) {
		var finds atomic.Int32
		docs := &fakeDocuments{
			findFn: func(context.Context, string, string) (*documents.Document, error) {
				if finds.Add(1) == 1 {
					d := pending("doc-1")
					return &d, nil
				}
				d := classified("doc-1", "cancer_core", "pathology", "fnac")
				return &d, nil
			},
		}
		pred := verdicts(map[string][3]string{"doc-1": {"non_cancer", "pathology", "biopsy"}})
		sys, mock := newSystem(t, docs, pred, classifications.Config{})

		mock.ExpectQuery("UPDATE documents").WillReturnRows(sqlmock.NewRows(columns))

		res, err := sys.Classify(context.Background(), "p1", "doc-1", false)
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if !res.PreviouslyClassified || *res.Classification != "cancer_core" {
			t.Errorf("expected the stored winner, got %+v", res)
		}
	})

	t.Run("forced is a conflict", func(t *testing.T) {
		docs := staticDocuments(classified("doc-1", "non_cancer", "imaging", "xray"))
		pred := verdicts(map[string][3]string{"doc-1": {"cancer_core", "imaging", "pet"}})
		sys, mock := newSystem(t, docs, pred, classifications.Config{})

		mock.ExpectQuery("UPDATE documents").WillReturnRows(sqlmock.NewRows(columns))

		_, err := sys.Classify(context.Background(), "p1", "doc-1", true)
		if !errors.Is(err, classifications.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})
}

func TestClassifyFailures(t *testing.T) {
	docs := staticDocuments(pending("doc-1"))
	sys, mock := newSystem(t, docs, verdicts(nil), classifications.Config{})

	if _, err := sys.Classify(context.Background(), "p1", "doc-1", false); !errors.Is(err, classifications.ErrPredictor) {
		t.Errorf("expected ErrPredictor, got %v", err)
	}
	if _, err := sys.Classify(context.Background(), "p2", "doc-1", false); !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another patient, got %v", err)
	}
	if _, err := sys.Classify(context.Background(), "p1", "  ", false); !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a blank id, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no writes expected: %v", err)
	}
}

func TestClassifyConcurrentCallsShareOnePrediction(t *testing.T) {
	var done atomic.Bool
	docs := &fakeDocuments{
		findFn: func(context.Context, string, string) (*documents.Document, error) {
			if done.Load() {
				d := classified("doc-1", "cancer_core", "pathology", "biopsy")
				return &d, nil
			}
			d := pending("doc-1")
			return &d, nil
		},
	}

	release := make(chan struct{})
	pred := &fakePredictor{
		predictFn: func(context.Context, documents.Document) (*predictor.Verdict, error) {
			<-release
			done.Store(true)
			return &predictor.Verdict{
				Classification: "cancer_core",
				Confidence:     ptr(0.9),
				Category:       ptr("pathology"),
				Subcategory:    ptr("biopsy"),
			}, nil
		},
	}
	sys, mock := newSystem(t, docs, pred, classifications.Config{})

	mock.ExpectQuery("UPDATE documents").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(classifiedRow("doc-1", "cancer_core", "pathology", "biopsy", 1)...))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Go(func() {
			res, err := sys.Classify(context.Background(), "p1", "doc-1", false)
			if err == nil && *res.Classification != "cancer_core" {
				err = errors.New("unexpected classification")
			}
			errs <- err
		})
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("classify: %v", err)
		}
	}
	if n := pred.calls.Load(); n != 1 {
		t.Errorf("predictor calls = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyBulkPending(t *testing.T) {
	docs := staticDocuments(pending("doc-a"), pending("doc-b"), pending("doc-c"))
	pred := verdicts(map[string][3]string{
		"doc-a": {"cancer_core", "pathology", "biopsy"},
		"doc-b": {"non_cancer", "laboratory", "cbc"},
		"doc-c": {"cancer_adjacent", "imaging", "pet"},
	})
	sys, mock := newSystem(t, docs, pred, classifications.Config{BulkConcurrency: 3})
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(`SELECT id FROM documents WHERE patient_id = \$1 AND classification IS NULL ORDER BY created_at ASC, id ASC`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-a").AddRow("doc-b").AddRow("doc-c"))

	for id, v := range map[string][3]string{
		"doc-a": {"cancer_core", "pathology", "biopsy"},
		"doc-b": {"non_cancer", "laboratory", "cbc"},
		"doc-c": {"cancer_adjacent", "imaging", "pet"},
	} {
		mock.ExpectQuery("UPDATE documents").
			WithArgs(id, "p1", 0, v[0], sqlmock.AnyArg(), sqlmock.AnyArg(), v[1], v[2], nil, nil, nil).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(classifiedRow(id, v[0], v[1], v[2], 1)...))
	}

	res, err := sys.ClassifyBulk(context.Background(), "p1", nil)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.TotalDocuments != 3 || res.Classified != 3 {
		t.Errorf("totals = %d/%d, want 3/3", res.TotalDocuments, res.Classified)
	}

	want := []struct{ id, category, subcategory string }{
		{"doc-a", "pathology", "biopsy"},
		{"doc-b", "laboratory", "cbc"},
		{"doc-c", "imaging", "pet"},
	}
	for i, w := range want {
		item := res.Results[i]
		if item.DocumentID != w.id || item.Status != classifications.StatusClassified {
			t.Fatalf("results[%d] = %+v", i, item)
		}
		if *item.Category != w.category || *item.Subcategory != w.subcategory {
			t.Errorf("results[%d] taxonomy = %s/%s", i, *item.Category, *item.Subcategory)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyBulkExplicitIDs(t *testing.T) {
	docs := staticDocuments(
		classified("doc-1", "cancer_core", "pathology", "biopsy"),
		pending("doc-2"),
	)
	pred := verdicts(map[string][3]string{"doc-2": {"non_cancer", "clinical", "referral"}})
	sys, mock := newSystem(t, docs, pred, classifications.Config{})

	mock.ExpectQuery("UPDATE documents").
		WithArgs("doc-2", "p1", 0, "non_cancer", sqlmock.AnyArg(), sqlmock.AnyArg(), "clinical", "referral", nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(classifiedRow("doc-2", "non_cancer", "clinical", "referral", 1)...))

	res, err := sys.ClassifyBulk(context.Background(), "p1", []string{"doc-1", "missing", "doc-1", " doc-2 "})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}

	if res.TotalDocuments != 3 || res.Classified != 2 {
		t.Errorf("totals = %d/%d, want 3/2", res.TotalDocuments, res.Classified)
	}
	if len(res.Results) != 4 {
		t.Fatalf("results should align with the request, got %d", len(res.Results))
	}

	first, failed, repeat, last := res.Results[0], res.Results[1], res.Results[2], res.Results[3]
	if first.DocumentID != "doc-1" || !first.PreviouslyClassified {
		t.Errorf("results[0] = %+v", first)
	}
	if failed.Status != classifications.StatusError || failed.Error != documents.NotFoundMessage || failed.Result != nil {
		t.Errorf("results[1] = %+v", failed)
	}
	if repeat.DocumentID != "doc-1" || repeat.Status != classifications.StatusDuplicate || repeat.Result != nil {
		t.Errorf("results[2] = %+v", repeat)
	}
	if last.DocumentID != "doc-2" || *last.Classification != "non_cancer" {
		t.Errorf("results[3] = %+v", last)
	}
	if n := pred.calls.Load(); n != 1 {
		t.Errorf("predictor calls = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClassifyBulkIsolatesPredictorFailures(t *testing.T) {
	docs := staticDocuments(pending("doc-1"), pending("doc-2"))
	pred := verdicts(map[string][3]string{"doc-2": {"non_cancer", "clinical", "referral"}})
	sys, mock := newSystem(t, docs, pred, classifications.Config{BulkConcurrency: 1})

	mock.ExpectQuery("UPDATE documents").
		WithArgs("doc-2", "p1", 0, "non_cancer", sqlmock.AnyArg(), sqlmock.AnyArg(), "clinical", "referral", nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(classifiedRow("doc-2", "non_cancer", "clinical", "referral", 1)...))

	res, err := sys.ClassifyBulk(context.Background(), "p1", []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.Classified != 1 || res.Results[0].Status != classifications.StatusError {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Results[1].Status != classifications.StatusClassified {
		t.Errorf("second item should succeed: %+v", res.Results[1])
	}
}

func TestClassifyBulkLimit(t *testing.T) {
	sys, _ := newSystem(t, staticDocuments(), verdicts(nil), classifications.Config{MaxBulkDocuments: 2})

	_, err := sys.ClassifyBulk(context.Background(), "p1", []string{"a", "b", "c"})
	if !errors.Is(err, classifications.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestClassifyBulkNoPending(t *testing.T) {
	sys, mock := newSystem(t, staticDocuments(), verdicts(nil), classifications.Config{})

	mock.ExpectQuery("SELECT id FROM documents").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := sys.ClassifyBulk(context.Background(), "p1", []string{})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.TotalDocuments != 0 || len(res.Results) != 0 || res.Results == nil {
		t.Errorf("expected an empty, non-nil result: %+v", res)
	}
}

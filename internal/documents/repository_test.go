package documents_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/taxonomy"
	"github.com/JaimeStill/triage/pkg/repository"
)

var columns = []string{
	"id", "patient_id", "filename", "storage_key", "content_type",
	"document_date", "is_handwritten", "category", "subcategory", "facility",
	"classification", "classification_confidence", "classification_reason",
	"classification_version", "approved_for_extraction", "reviewed_at",
	"created_at", "updated_at",
}

var created = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func row(id string, category, subcategory any) []driver.Value {
	return []driver.Value{
		id, "p1", id + ".pdf", "patients/p1/" + id + ".pdf", "application/pdf",
		time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), false, category, subcategory, nil,
		nil, nil, nil,
		int64(0), false, nil,
		created, created,
	}
}

var (
	monotonicUpdatedAt = regexp.MustCompile(`updated_at\s*=\s*GREATEST\(updated_at,\s*NOW\(\)\)`)
	assignsUpdatedAt   = regexp.MustCompile(`updated_at\s*=`)
	assignsApproval    = regexp.MustCompile(`approved_for_extraction\s*=`)
)

// guardedWrites matches like sqlmock.QueryMatcherRegexp and rejects a
// metadata edit that touches approval or can move updated_at backwards.
var guardedWrites = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	if err := sqlmock.QueryMatcherRegexp.Match(expected, actual); err != nil {
		return err
	}
	if !strings.Contains(actual, "UPDATE documents") {
		return nil
	}
	if assignsApproval.MatchString(actual) {
		return fmt.Errorf("metadata edit assigns approved_for_extraction: %s", actual)
	}
	if len(assignsUpdatedAt.FindAllString(actual, -1)) != 1 || !monotonicUpdatedAt.MatchString(actual) {
		return fmt.Errorf("metadata edit must keep updated_at monotonic: %s", actual)
	}
	return nil
})

func newRepo(t *testing.T) (documents.System, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(guardedWrites))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return documents.New(db, taxonomy.Default(), logger), mock
}

func TestFind(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM public.documents d WHERE d.patient_id = $1 AND d.id = $2 LIMIT 1")).
		WithArgs("p1", "doc-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(row("doc-1", "pathology", "biopsy")...))

	doc, err := sys.Find(context.Background(), "p1", "doc-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc.ID != "doc-1" || *doc.Category != "pathology" || *doc.Subcategory != "biopsy" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.DocumentDate == nil || doc.DocumentDate.String() != "2024-04-30" {
		t.Errorf("document_date: got %v", doc.DocumentDate)
	}
	if doc.Classified() {
		t.Error("document should be unclassified")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindOtherPatient(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectQuery("FROM public.documents d").
		WithArgs("p2", "doc-1").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := sys.Find(context.Background(), "p2", "doc-1")
	if !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindStoreFailure(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectQuery("FROM public.documents d").WillReturnError(errors.New("connection reset"))

	_, err := sys.Find(context.Background(), "p1", "doc-1")
	if !errors.Is(err, repository.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestList(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.patient_id = $1 AND d.category = $2 ORDER BY d.created_at DESC, d.id ASC")).
		WithArgs("p1", "pathology").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(row("doc-2", "pathology", "fnac")...).
			AddRow(row("doc-1", "pathology", "biopsy")...))

	result, err := sys.List(context.Background(), "p1", documents.Filters{Category: strPtr("pathology")})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 2 || len(result.Data) != 2 {
		t.Fatalf("total: got %d (%d rows)", result.Total, len(result.Data))
	}
	if result.Filters.Sort != "created_at" || result.Filters.Order != "DESC" {
		t.Errorf("filters should echo defaults: %+v", result.Filters)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListEmpty(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectQuery("FROM public.documents d").WillReturnRows(sqlmock.NewRows(columns))

	result, err := sys.List(context.Background(), "p1", documents.Filters{Category: strPtr("surgical")})
	if err != nil {
		t.Fatalf("empty result is not an error: %v", err)
	}
	if result.Data == nil || len(result.Data) != 0 || result.Total != 0 {
		t.Errorf("expected empty data, got %+v", result)
	}
}

func TestListCrossCategoryPairSkipsStore(t *testing.T) {
	sys, mock := newRepo(t)

	result, err := sys.List(context.Background(), "p1", documents.Filters{
		Category:    strPtr("imaging"),
		Subcategory: strPtr("biopsy"),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 0 || len(result.Data) != 0 {
		t.Errorf("expected no documents, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListValidationSkipsStore(t *testing.T) {
	sys, mock := newRepo(t)

	_, err := sys.List(context.Background(), "p1", documents.Filters{Category: strPtr("radiology")})
	if !errors.Is(err, documents.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdate(t *testing.T) {
	sys, mock := newRepo(t)

	updated := row("doc-1", "pathology", "fnac")
	updated[9] = "City Hospital"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 1 FOR UPDATE")).
		WithArgs("p1", "doc-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(row("doc-1", "pathology", "biopsy")...))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", "p1", "pathology", "fnac", "City Hospital").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(updated...))
	mock.ExpectCommit()

	doc, err := sys.Update(context.Background(), "p1", "doc-1", documents.UpdateCommand{
		Subcategory: strPtr("fnac"),
		Facility:    strPtr("City Hospital"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if *doc.Subcategory != "fnac" || *doc.Facility != "City Hospital" {
		t.Errorf("unexpected document: %+v", doc)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateKeepsApprovalAndTimestamp(t *testing.T) {
	sys, mock := newRepo(t)

	later := created.Add(2 * time.Hour)
	current := row("doc-1", "imaging", "ct")
	current[14] = true
	current[17] = later
	updated := row("doc-1", "imaging", "mri")
	updated[14] = true
	updated[17] = later

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(columns).AddRow(current...))
	mock.ExpectQuery("UPDATE documents").
		WithArgs("doc-1", "p1", "imaging", "mri", nil).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(updated...))
	mock.ExpectCommit()

	doc, err := sys.Update(context.Background(), "p1", "doc-1", documents.UpdateCommand{Subcategory: strPtr("mri")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !doc.ApprovedForExtraction || doc.UpdatedAt.Before(later) {
		t.Errorf("approval and updated_at should survive the edit: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateClearsFacility(t *testing.T) {
	sys, mock := newRepo(t)

	current := row("doc-1", "imaging", "ct")
	current[9] = "Old Clinic"

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(columns).AddRow(current...))
	mock.ExpectQuery("UPDATE documents").
		WithArgs("doc-1", "p1", "imaging", "ct", nil).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(row("doc-1", "imaging", "ct")...))
	mock.ExpectCommit()

	doc, err := sys.Update(context.Background(), "p1", "doc-1", documents.UpdateCommand{Facility: strPtr("")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if doc.Facility != nil {
		t.Errorf("facility should be cleared, got %q", *doc.Facility)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateRejectsMismatchedPair(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(columns).AddRow(row("doc-1", "imaging", "ct")...))
	mock.ExpectRollback()

	_, err := sys.Update(context.Background(), "p1", "doc-1", documents.UpdateCommand{Subcategory: strPtr("biopsy")})
	if !errors.Is(err, documents.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	sys, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectRollback()

	_, err := sys.Update(context.Background(), "p1", "missing", documents.UpdateCommand{Category: strPtr("clinical")})
	if !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEmptyCommand(t *testing.T) {
	sys, mock := newRepo(t)

	_, err := sys.Update(context.Background(), "p1", "doc-1", documents.UpdateCommand{})
	if !errors.Is(err, documents.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

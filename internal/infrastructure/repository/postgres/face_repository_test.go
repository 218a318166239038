package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/farsight/personfinder/internal/core/domain"
)

func newFaceRepoWithMock(t *testing.T) (*FaceRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &FaceRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newFaceRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT person_id, name, age, description").
		WithArgs("MP-MISSING0").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "MP-MISSING0")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrPersonNotFound) {
		t.Fatalf("expected ErrPersonNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newFaceRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE faces").
		WithArgs("MP-MISSING0", string(domain.StatusFound)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "MP-MISSING0", domain.StatusFound)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrPersonNotFound) {
		t.Fatalf("expected ErrPersonNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDecodesEmbeddingAndOrdersRows(t *testing.T) {
	repo, mock, done := newFaceRepoWithMock(t)
	defer done()

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"person_id", "name", "age", "description", "embedding",
		"photo_path", "last_seen", "reported_by", "status", "created_at",
	}).
		AddRow("MP-AAAA1111", "Alice", 30, "red jacket", []byte(`[0.1,0.2]`),
			"/uploads/MP-AAAA1111.jpg", "park", "family", "searching", created).
		AddRow("MP-BBBB2222", "Bob", 41, "", []byte(`[0.3]`),
			"/uploads/MP-BBBB2222.jpg", nil, nil, "found", created.Add(time.Hour))

	mock.ExpectQuery("SELECT person_id, name, age, description").
		WillReturnRows(rows)

	records, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].PersonID != "MP-AAAA1111" || records[1].PersonID != "MP-BBBB2222" {
		t.Fatalf("unexpected order: %s, %s", records[0].PersonID, records[1].PersonID)
	}
	if len(records[0].Embedding) != 2 || records[0].Embedding[1] != 0.2 {
		t.Fatalf("embedding not decoded: %v", records[0].Embedding)
	}
	if records[1].LastSeen != "" || records[1].ReportedBy != "" {
		t.Fatalf("null columns should scan as empty strings: %+v", records[1])
	}
	if records[1].Status != domain.StatusFound {
		t.Fatalf("status = %q, want %q", records[1].Status, domain.StatusFound)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateInsertsEncodedEmbedding(t *testing.T) {
	repo, mock, done := newFaceRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO faces").
		WithArgs("MP-AAAA1111", "Alice", 30, "red jacket", []byte(`[0.5]`),
			"/uploads/MP-AAAA1111.jpg", "park", "family", "searching", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &domain.FaceRecord{
		PersonID:    "MP-AAAA1111",
		Name:        "Alice",
		Age:         30,
		Description: "red jacket",
		Embedding:   []float32{0.5},
		PhotoPath:   "/uploads/MP-AAAA1111.jpg",
		LastSeen:    "park",
		ReportedBy:  "family",
		Status:      domain.StatusSearching,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
)

type embedderFake struct {
	embedding []float32
	err       error
}

func (f *embedderFake) ExtractEmbedding(context.Context, image.Image) ([]float32, error) {
	return f.embedding, f.err
}

type galleryFake struct {
	records   []domain.FaceRecord
	createErr error
	updateErr error
}

func (f *galleryFake) Create(_ context.Context, rec *domain.FaceRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *galleryFake) GetByID(_ context.Context, personID string) (*domain.FaceRecord, error) {
	for i := range f.records {
		if f.records[i].PersonID == personID {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, domain.WrapError(domain.ErrPersonNotFound, "get", errors.New(personID))
}

func (f *galleryFake) List(context.Context) ([]domain.FaceRecord, error) {
	return append([]domain.FaceRecord(nil), f.records...), nil
}

func (f *galleryFake) UpdateStatus(_ context.Context, personID string, status domain.CaseStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.records {
		if f.records[i].PersonID == personID {
			f.records[i].Status = status
			return nil
		}
	}
	return domain.WrapError(domain.ErrPersonNotFound, "update status", errors.New(personID))
}

type storageFake struct {
	saved   map[string][]byte
	removed []string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.saved[key] = raw
	return "/uploads/" + key, nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *storageFake) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	delete(f.saved, key)
	return nil
}

func jpegPhoto(t *testing.T) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 180, G: 150, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return &buf
}

var personIDPattern = regexp.MustCompile(`^MP-[0-9A-F]{8}$`)

func TestRegisterPersonSuccess(t *testing.T) {
	gallery := &galleryFake{}
	storage := newStorageFake()
	embedder := &embedderFake{embedding: make([]float32, domain.EmbeddingSize)}
	uc := NewRegisterPersonUseCase(embedder, gallery, storage, testLogger())

	rec, err := uc.RegisterPerson(context.Background(), ports.Registration{
		Name:        "Jordan Avery",
		Age:         34,
		Description: "red jacket, glasses",
		Filename:    "photo.png",
	}, jpegPhoto(t))
	if err != nil {
		t.Fatalf("RegisterPerson() error = %v", err)
	}
	if !personIDPattern.MatchString(rec.PersonID) {
		t.Fatalf("person id %q does not match MP-XXXXXXXX", rec.PersonID)
	}
	if rec.Status != domain.StatusSearching {
		t.Fatalf("status = %s, want searching", rec.Status)
	}
	if len(rec.Embedding) != domain.EmbeddingSize {
		t.Fatalf("embedding length = %d", len(rec.Embedding))
	}
	if len(gallery.records) != 1 {
		t.Fatalf("expected gallery record")
	}
	if len(storage.saved) != 1 {
		t.Fatalf("expected saved photo")
	}
	for key := range storage.saved {
		if !strings.HasSuffix(key, ".png") {
			t.Fatalf("expected original extension preserved, got %s", key)
		}
	}
}

func TestRegisterPersonNoFaceRollsBackPhoto(t *testing.T) {
	gallery := &galleryFake{}
	storage := newStorageFake()
	embedder := &embedderFake{err: domain.WrapError(domain.ErrNoFaceFound, "extract", errors.New("0 faces"))}
	uc := NewRegisterPersonUseCase(embedder, gallery, storage, testLogger())

	_, err := uc.RegisterPerson(context.Background(), ports.Registration{Name: "Test"}, jpegPhoto(t))
	if !domain.IsKind(err, domain.ErrNoFaceFound) {
		t.Fatalf("expected ErrNoFaceFound, got %v", err)
	}
	if len(gallery.records) != 0 {
		t.Fatalf("gallery entry must not be created on failed extraction")
	}
	if len(storage.saved) != 0 || len(storage.removed) != 1 {
		t.Fatalf("uploaded file must be rolled back: saved=%d removed=%d", len(storage.saved), len(storage.removed))
	}
}

func TestRegisterPersonGalleryFailureRollsBackPhoto(t *testing.T) {
	gallery := &galleryFake{createErr: errors.New("disk full")}
	storage := newStorageFake()
	embedder := &embedderFake{embedding: make([]float32, domain.EmbeddingSize)}
	uc := NewRegisterPersonUseCase(embedder, gallery, storage, testLogger())

	_, err := uc.RegisterPerson(context.Background(), ports.Registration{Name: "Test"}, jpegPhoto(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(storage.saved) != 0 || len(storage.removed) != 1 {
		t.Fatalf("photo must be removed when the gallery write fails")
	}
}

func TestRegisterPersonRejectsBlankName(t *testing.T) {
	uc := NewRegisterPersonUseCase(&embedderFake{}, &galleryFake{}, newStorageFake(), testLogger())
	_, err := uc.RegisterPerson(context.Background(), ports.Registration{Name: "  "}, jpegPhoto(t))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegisterPersonRejectsNonImagePayload(t *testing.T) {
	uc := NewRegisterPersonUseCase(&embedderFake{}, &galleryFake{}, newStorageFake(), testLogger())
	_, err := uc.RegisterPerson(context.Background(), ports.Registration{Name: "Test"}, strings.NewReader("not an image"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

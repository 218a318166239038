package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
	"github.com/farsight/personfinder/internal/vision/imaging"
)

// RegisterPersonUseCase handles missing-person uploads: save the reference
// photo, extract the face embedding, create the gallery record. Any failure
// after the photo is written rolls the file back so no partial state remains.
type RegisterPersonUseCase struct {
	embedder ports.FaceEmbedder
	gallery  ports.FaceGallery
	storage  ports.PhotoStorage
	logger   *slog.Logger
	now      func() time.Time
}

func NewRegisterPersonUseCase(
	embedder ports.FaceEmbedder,
	gallery ports.FaceGallery,
	storage ports.PhotoStorage,
	logger *slog.Logger,
) *RegisterPersonUseCase {
	return &RegisterPersonUseCase{
		embedder: embedder,
		gallery:  gallery,
		storage:  storage,
		logger:   logger,
		now:      time.Now,
	}
}

func (uc *RegisterPersonUseCase) RegisterPerson(ctx context.Context, reg ports.Registration, photo io.Reader) (*domain.FaceRecord, error) {
	if strings.TrimSpace(reg.Name) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register person", fmt.Errorf("name is required"))
	}

	raw, err := io.ReadAll(photo)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	img, err := imaging.DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	personID := NewPersonID()
	key := personID + photoExtension(reg.Filename)

	photoPath, err := uc.storage.Save(ctx, key, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("save photo: %w", err)
	}

	embedding, err := uc.embedder.ExtractEmbedding(ctx, img)
	if err != nil {
		uc.rollbackPhoto(ctx, key)
		if domain.IsKind(err, domain.ErrNoFaceFound) {
			return nil, domain.WrapError(domain.ErrNoFaceFound, "register person", err)
		}
		return nil, fmt.Errorf("extract embedding: %w", err)
	}

	rec := &domain.FaceRecord{
		PersonID:    personID,
		Name:        reg.Name,
		Age:         reg.Age,
		Description: reg.Description,
		Embedding:   embedding,
		PhotoPath:   photoPath,
		LastSeen:    reg.LastSeen,
		ReportedBy:  reg.ReportedBy,
		Status:      domain.StatusSearching,
		CreatedAt:   uc.now().UTC(),
	}

	if err := uc.gallery.Create(ctx, rec); err != nil {
		uc.rollbackPhoto(ctx, key)
		return nil, fmt.Errorf("create gallery record: %w", err)
	}

	uc.logger.Info("person_registered", "person_id", personID, "name", reg.Name)
	return rec, nil
}

func (uc *RegisterPersonUseCase) rollbackPhoto(ctx context.Context, key string) {
	if err := uc.storage.Remove(ctx, key); err != nil {
		uc.logger.Warn("photo_rollback_failed", "key", key, "error", err)
	}
}

// NewPersonID generates case ids of the form MP-XXXXXXXX.
func NewPersonID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MP-" + strings.ToUpper(hex[:8])
}

func photoExtension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ".jpg"
	}
	return ext
}

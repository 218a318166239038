// Package jsonfile stores the face gallery in a single JSON file. It is the
// default backend for single-node deployments without Postgres.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/farsight/personfinder/internal/core/domain"
)

type Gallery struct {
	path string

	mu      sync.RWMutex
	records map[string]domain.FaceRecord
	order   []string
}

func New(path string) (*Gallery, error) {
	g := &Gallery{
		path:    path,
		records: make(map[string]domain.FaceRecord),
	}
	if err := g.load(); err != nil {
		return nil, fmt.Errorf("load gallery %s: %w", path, err)
	}
	return g, nil
}

func (g *Gallery) load() error {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var records []domain.FaceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	for _, rec := range records {
		if _, ok := g.records[rec.PersonID]; ok {
			continue
		}
		g.records[rec.PersonID] = rec
		g.order = append(g.order, rec.PersonID)
	}
	return nil
}

// persist writes the full gallery to a temp file and renames it into place.
// Callers hold g.mu; the snapshot passed in is what the file will contain, so
// the in-memory state is only updated after the write succeeds.
func (g *Gallery) persist(snapshot []domain.FaceRecord) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".gallery-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), g.path)
}

func (g *Gallery) snapshotWith(rec domain.FaceRecord, replace bool) []domain.FaceRecord {
	out := make([]domain.FaceRecord, 0, len(g.order)+1)
	for _, id := range g.order {
		if replace && id == rec.PersonID {
			out = append(out, rec)
			continue
		}
		out = append(out, g.records[id])
	}
	if !replace {
		out = append(out, rec)
	}
	return out
}

func (g *Gallery) Create(ctx context.Context, rec *domain.FaceRecord) error {
	const op = "jsonfile.Create"
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[rec.PersonID]; ok {
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("person %s already exists", rec.PersonID))
	}
	if err := g.persist(g.snapshotWith(*rec, false)); err != nil {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	g.records[rec.PersonID] = *rec
	g.order = append(g.order, rec.PersonID)
	return nil
}

func (g *Gallery) GetByID(ctx context.Context, personID string) (*domain.FaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.records[personID]
	if !ok {
		return nil, domain.WrapError(domain.ErrPersonNotFound, "jsonfile.GetByID", fmt.Errorf("person %s", personID))
	}
	out := rec
	return &out, nil
}

// List returns records in insertion order.
func (g *Gallery) List(ctx context.Context) ([]domain.FaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.FaceRecord, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.records[id])
	}
	return out, nil
}

func (g *Gallery) UpdateStatus(ctx context.Context, personID string, status domain.CaseStatus) error {
	const op = "jsonfile.UpdateStatus"
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[personID]
	if !ok {
		return domain.WrapError(domain.ErrPersonNotFound, op, fmt.Errorf("person %s", personID))
	}
	rec.Status = status
	if err := g.persist(g.snapshotWith(rec, true)); err != nil {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	g.records[personID] = rec
	return nil
}

// Package goface extracts dlib face descriptors through go-face. The
// recognizer needs the dlib model files (shape predictor, resnet descriptor,
// cnn detector) in one directory.
package goface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	goface "github.com/Kagami/go-face"

	"github.com/farsight/personfinder/internal/core/domain"
)

type Engine struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

func New(modelsDir string) (*Engine, error) {
	rec, err := goface.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("init face recognizer from %s: %w", modelsDir, err)
	}
	return &Engine{rec: rec}, nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Close()
}

// ExtractEmbedding returns the descriptor of the first face found in img.
func (e *Engine) ExtractEmbedding(ctx context.Context, img image.Image) ([]float32, error) {
	const op = "goface.ExtractEmbedding"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("nil image"))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	e.mu.Lock()
	faces, err := e.rec.Recognize(buf.Bytes())
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognize faces: %w", err)
	}
	if len(faces) == 0 {
		return nil, domain.WrapError(domain.ErrNoFaceFound, op, fmt.Errorf("no face in image"))
	}

	descriptor := faces[0].Descriptor
	embedding := make([]float32, domain.EmbeddingSize)
	copy(embedding, descriptor[:])
	return embedding, nil
}

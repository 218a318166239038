// Package clipd talks to an external image-text similarity service. The
// service scores how well a person crop matches a free-text description;
// matching treats any failure here as the factor being unavailable.
package clipd

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"
	"time"

	"github.com/farsight/personfinder/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Similarity returns the service's score in [0, 1] for a crop against a
// description.
func (c *Client) Similarity(ctx context.Context, crop image.Image, description string) (float64, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 85}); err != nil {
		return 0, fmt.Errorf("encode crop: %w", err)
	}

	request := map[string]any{
		"image": base64.StdEncoding.EncodeToString(buf.Bytes()),
		"text":  description,
	}
	var response struct {
		Score float64 `json:"score"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/similarity", request, &response, "similarity")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "clipd.similarity", call, classifySimilarityError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return 0, wrapTemporaryIfNeeded("similarity", err)
	}

	score := response.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

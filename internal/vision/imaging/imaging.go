// Package imaging holds frame decoding and cropping helpers shared by the
// detection pipeline and the HTTP/stream adapters.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"

	"github.com/farsight/personfinder/internal/core/domain"
)

// Crop copies the given rectangle out of img into a fresh RGBA image.
func Crop(img image.Image, box image.Rectangle) *image.RGBA {
	box = box.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Copy(out, image.Point{}, img, box, draw.Src, nil)
	return out
}

// Scale resizes img to w×h using approximate bi-linear interpolation.
func Scale(img image.Image, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

// DecodeBase64Frame decodes a base64 image payload, tolerating an optional
// data-URL prefix ("data:image/jpeg;base64,...").
func DecodeBase64Frame(payload string) (image.Image, error) {
	if payload == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode frame", fmt.Errorf("empty image payload"))
	}
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode frame", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode frame", err)
	}
	return img, nil
}

// DecodeImage decodes raw encoded image bytes.
func DecodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode image", err)
	}
	return img, nil
}

// Package colorcls extracts the dominant color of a pixel region by k-means
// clustering and maps it to a discrete label through an ordered RGB palette.
package colorcls

import (
	"image"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/farsight/personfinder/internal/vision/imaging"
)

const (
	defaultK       = 3
	maxIterations  = 20
	convergenceEps = 1.0

	// Regions larger than this on either side are downsampled before
	// clustering; the dominant color survives the resize and k-means cost
	// stays bounded per frame.
	maxSampleDim = 64
)

// Classifier clusters region pixels and names the dominant cluster center.
// A fixed seed makes cluster initialization, and therefore the label,
// deterministic for a given region.
type Classifier struct {
	palette []ColorRange
	k       int
	seed    int64
}

func New(palette []ColorRange, k int, seed int64) *Classifier {
	if len(palette) == 0 {
		palette = DefaultPalette()
	}
	if k <= 0 {
		k = defaultK
	}
	return &Classifier{palette: palette, k: k, seed: seed}
}

// Classify returns the palette name of the region's dominant color, or
// Unknown for an empty region or an unmapped center. No clustering is
// attempted when the region has zero pixels.
func (c *Classifier) Classify(region image.Image) string {
	pixels := collectPixels(region)
	if len(pixels) == 0 {
		return Unknown
	}
	center := c.dominantCenter(pixels)
	return c.lookup(center)
}

func (c *Classifier) lookup(center [3]float64) string {
	for _, cr := range c.palette {
		if cr.contains(center) {
			return cr.Name
		}
	}
	return Unknown
}

// dominantCenter runs bounded k-means over the pixels and returns the center
// of the most populated cluster.
func (c *Classifier) dominantCenter(pixels [][3]float64) [3]float64 {
	k := c.k
	if k > len(pixels) {
		k = len(pixels)
	}

	rng := rand.New(rand.NewSource(c.seed))
	centers := make([][3]float64, k)
	for i, idx := range rng.Perm(len(pixels))[:k] {
		centers[i] = pixels[idx]
	}

	assignments := make([]int, len(pixels))
	counts := make([]int, k)

	for iter := 0; iter < maxIterations; iter++ {
		for i := range counts {
			counts[i] = 0
		}
		for pi, px := range pixels {
			best, bestDist := 0, pixelDistance(px, centers[0])
			for ci := 1; ci < k; ci++ {
				if d := pixelDistance(px, centers[ci]); d < bestDist {
					best, bestDist = ci, d
				}
			}
			assignments[pi] = best
			counts[best]++
		}

		next := make([][3]float64, k)
		for pi, px := range pixels {
			ci := assignments[pi]
			next[ci][0] += px[0]
			next[ci][1] += px[1]
			next[ci][2] += px[2]
		}
		shift := 0.0
		for ci := range next {
			if counts[ci] == 0 {
				next[ci] = centers[ci]
				continue
			}
			n := float64(counts[ci])
			next[ci][0] /= n
			next[ci][1] /= n
			next[ci][2] /= n
			if d := pixelDistance(next[ci], centers[ci]); d > shift {
				shift = d
			}
		}
		centers = next
		if shift < convergenceEps {
			break
		}
	}

	dominant := 0
	for ci := 1; ci < k; ci++ {
		if counts[ci] > counts[dominant] {
			dominant = ci
		}
	}
	return centers[dominant]
}

func pixelDistance(a, b [3]float64) float64 {
	return floats.Distance(a[:], b[:], 2)
}

func collectPixels(region image.Image) [][3]float64 {
	if region == nil {
		return nil
	}
	bounds := region.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil
	}
	if bounds.Dx() > maxSampleDim || bounds.Dy() > maxSampleDim {
		w, h := bounds.Dx(), bounds.Dy()
		if w > h {
			h = h * maxSampleDim / w
			w = maxSampleDim
		} else {
			w = w * maxSampleDim / h
			h = maxSampleDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		region = imaging.Scale(region, w, h)
		bounds = region.Bounds()
	}
	pixels := make([][3]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := region.At(x, y).RGBA()
			pixels = append(pixels, [3]float64{
				float64(r >> 8),
				float64(g >> 8),
				float64(b >> 8),
			})
		}
	}
	return pixels
}

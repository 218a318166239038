package colorcls

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColorRange is one named axis-aligned RGB box. Ranges may overlap; lookup
// order decides, so the palette is an ordered list, not a map.
type ColorRange struct {
	Name  string   `yaml:"name"`
	Lower [3]uint8 `yaml:"lower"`
	Upper [3]uint8 `yaml:"upper"`
}

// Unknown is returned when no palette box contains the dominant color.
const Unknown = "Unknown"

// DefaultPalette returns the built-in color table. The entry order is part of
// the contract: the first box containing the dominant color wins.
func DefaultPalette() []ColorRange {
	return []ColorRange{
		{Name: "Red", Lower: [3]uint8{200, 0, 0}, Upper: [3]uint8{255, 100, 100}},
		{Name: "Pink", Lower: [3]uint8{200, 100, 150}, Upper: [3]uint8{255, 200, 220}},
		{Name: "Blue", Lower: [3]uint8{0, 0, 150}, Upper: [3]uint8{100, 100, 255}},
		{Name: "Green", Lower: [3]uint8{0, 150, 0}, Upper: [3]uint8{100, 255, 100}},
		{Name: "Yellow", Lower: [3]uint8{200, 200, 0}, Upper: [3]uint8{255, 255, 150}},
		{Name: "Orange", Lower: [3]uint8{200, 100, 0}, Upper: [3]uint8{255, 200, 100}},
		{Name: "Purple", Lower: [3]uint8{100, 0, 150}, Upper: [3]uint8{200, 100, 255}},
		{Name: "Black", Lower: [3]uint8{0, 0, 0}, Upper: [3]uint8{50, 50, 50}},
		{Name: "White", Lower: [3]uint8{200, 200, 200}, Upper: [3]uint8{255, 255, 255}},
		{Name: "Gray", Lower: [3]uint8{100, 100, 100}, Upper: [3]uint8{150, 150, 150}},
		{Name: "Brown", Lower: [3]uint8{100, 50, 0}, Upper: [3]uint8{150, 100, 50}},
		{Name: "Khaki", Lower: [3]uint8{180, 180, 120}, Upper: [3]uint8{220, 220, 160}},
	}
}

// LoadPalette reads an ordered palette from a YAML file.
func LoadPalette(path string) ([]ColorRange, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette file: %w", err)
	}
	var palette []ColorRange
	if err := yaml.Unmarshal(raw, &palette); err != nil {
		return nil, fmt.Errorf("parse palette yaml: %w", err)
	}
	if len(palette) == 0 {
		return nil, fmt.Errorf("palette file %s contains no entries", path)
	}
	return palette, nil
}

func (r ColorRange) contains(c [3]float64) bool {
	for i := 0; i < 3; i++ {
		if c[i] < float64(r.Lower[i]) || c[i] > float64(r.Upper[i]) {
			return false
		}
	}
	return true
}

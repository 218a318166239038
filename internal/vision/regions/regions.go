// Package regions derives torso and leg sub-images from COCO-17 pose
// keypoints over a person crop.
package regions

import (
	"image"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/vision/imaging"
)

// COCO-17 landmark indices used for region boxes.
const (
	leftShoulder  = 5
	rightShoulder = 6
	leftHip       = 11
	rightHip      = 12
	leftAnkle     = 15
	rightAnkle    = 16
)

const padding = 10

// Torso returns the crop between shoulders and hips, padded and clamped to
// the person crop. Nil when keypoints are missing or the box is degenerate.
func Torso(crop image.Image, kp domain.PoseKeypoints) image.Image {
	return extract(crop, kp, leftShoulder, rightShoulder, leftHip, rightHip)
}

// Legs returns the crop between hips and ankles.
func Legs(crop image.Image, kp domain.PoseKeypoints) image.Image {
	return extract(crop, kp, leftHip, rightHip, leftAnkle, rightAnkle)
}

func extract(crop image.Image, kp domain.PoseKeypoints, landmarks ...int) image.Image {
	if crop == nil || !kp.Complete() {
		return nil
	}

	minX, minY := int(kp[landmarks[0]*3]), int(kp[landmarks[0]*3+1])
	maxX, maxY := minX, minY
	for _, lm := range landmarks[1:] {
		x, y := int(kp[lm*3]), int(kp[lm*3+1])
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}

	box := image.Rect(minX-padding, minY-padding, maxX+padding, maxY+padding)

	// Keypoints are relative to the crop; translate into its coordinate space.
	bounds := crop.Bounds()
	box = box.Add(bounds.Min).Intersect(bounds)
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return nil
	}
	return imaging.Crop(crop, box)
}

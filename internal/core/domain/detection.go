package domain

import "image"

// Detection is one bounding box returned by the person detector.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
}

// PoseKeypoints is the flattened (x, y, confidence) sequence for the 17
// COCO pose landmarks, relative to the person crop.
type PoseKeypoints []float32

// KeypointCount is the number of landmarks in the COCO pose layout.
const KeypointCount = 17

// Complete reports whether the sequence carries all 17 landmark triples.
func (kp PoseKeypoints) Complete() bool {
	return len(kp) >= KeypointCount*3
}

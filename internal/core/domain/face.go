package domain

import "time"

// EmbeddingSize is the length of a dlib face descriptor.
const EmbeddingSize = 128

// FaceRecord is one gallery entry. It is created only after a successful
// embedding extraction and mutated only through explicit status updates.
type FaceRecord struct {
	PersonID    string     `json:"personId"`
	Name        string     `json:"name"`
	Age         int        `json:"age"`
	Description string     `json:"description"`
	Embedding   []float32  `json:"embedding"`
	PhotoPath   string     `json:"photoPath"`
	LastSeen    string     `json:"lastSeen,omitempty"`
	ReportedBy  string     `json:"reportedBy,omitempty"`
	Status      CaseStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// FaceMatch is one gallery candidate within tolerance of a probe face.
type FaceMatch struct {
	PersonID   string    `json:"personId"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Distance   float64   `json:"distance"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProfileHit is one ranked result of a free-text gallery search.
type ProfileHit struct {
	PersonID    string     `json:"personId"`
	Name        string     `json:"name"`
	Age         int        `json:"age"`
	Description string     `json:"description"`
	LastSeen    string     `json:"lastSeen,omitempty"`
	ReportedBy  string     `json:"reportedBy,omitempty"`
	Status      CaseStatus `json:"status"`
	MatchScore  int        `json:"matchScore"`
	PhotoPath   string     `json:"photoPath"`
}

// LiveStats is derived from current gallery and pipeline state.
type LiveStats struct {
	TotalScans          int64 `json:"totalScans"`
	FacesDetected       int64 `json:"facesDetected"`
	ActiveMatches       int   `json:"activeMatches"`
	TotalMissingPersons int   `json:"totalMissingPersons"`
	SearchingCount      int   `json:"searchingCount"`
}

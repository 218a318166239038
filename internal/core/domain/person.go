package domain

import "time"

type CaseStatus string

const (
	StatusSearching      CaseStatus = "searching"
	StatusPotentialMatch CaseStatus = "potential-match"
	StatusFound          CaseStatus = "found"
	StatusClosed         CaseStatus = "closed"
)

// MissingPersonProfile is the caller-supplied description of who to look for.
// It is immutable for the duration of one matching pass; streaming sessions
// replace their whole profile set atomically.
type MissingPersonProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Age         int      `json:"age"`
	Description string   `json:"description"`
	PhotoURL    string   `json:"photoUrl,omitempty"`
	TopColor    string   `json:"topColor,omitempty"`
	BottomColor string   `json:"bottomColor,omitempty"`
	Accessories []string `json:"accessories,omitempty"`
}

// DetectedAttributes is the transient appearance record built for one
// detected person within one frame. Empty color means "not determined".
type DetectedAttributes struct {
	TopColor    string   `json:"topColor,omitempty"`
	BottomColor string   `json:"bottomColor,omitempty"`
	Accessories []string `json:"accessories"`
}

// MatchResult is one above-threshold pairing of a detection with a profile.
// EventID is unique per detection event; DetectedPersonID is derived from the
// detection's frame position so a stationary subject keeps a stable dedupe key
// across consecutive frames.
type MatchResult struct {
	EventID          string             `json:"eventId"`
	DetectedPersonID string             `json:"personId"`
	MissingPersonID  string             `json:"missingPersonId"`
	Confidence       float64            `json:"confidence"`
	Attributes       DetectedAttributes `json:"attributes"`
	Timestamp        time.Time          `json:"timestamp"`
	Location         string             `json:"location,omitempty"`
}

// MatchEvent is the fanout payload published for every emitted stream match.
type MatchEvent struct {
	StreamID string      `json:"streamId"`
	Match    MatchResult `json:"match"`
}

// Sighting is the durable record a worker writes for an emitted match event.
type Sighting struct {
	ID               string    `json:"id"`
	StreamID         string    `json:"streamId"`
	MissingPersonID  string    `json:"missingPersonId"`
	DetectedPersonID string    `json:"detectedPersonId"`
	Confidence       float64   `json:"confidence"`
	TopColor         string    `json:"topColor,omitempty"`
	BottomColor      string    `json:"bottomColor,omitempty"`
	SightedAt        time.Time `json:"sightedAt"`
}

// Package stream runs live video matching sessions over a websocket-style
// connection. Clients send base64 frames and profile updates; the session
// answers with throttled match events.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
	"github.com/farsight/personfinder/internal/vision/imaging"
)

type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

// DefaultDedupeWindow suppresses repeat notifications for the same
// (missing person, detected person) pair.
const DefaultDedupeWindow = 5 * time.Second

// Conn is the subset of a websocket connection the session drives.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Metrics is what the session reports about itself. *metrics.HTTPServerMetrics
// satisfies it.
type Metrics interface {
	RecordMatchEmitted(service string)
	RecordMatchThrottled(service string)
	SessionStarted()
	SessionEnded()
}

type Session struct {
	id        string
	processor ports.FrameProcessor
	publisher ports.MatchPublisher
	logger    *slog.Logger

	dedupeWindow time.Duration
	limiter      *rate.Limiter
	now          func() time.Time
	metrics      Metrics
	service      string

	mu       sync.RWMutex
	state    State
	profiles []domain.MissingPersonProfile
	lastEmit map[string]time.Time
}

type Option func(*Session)

func WithDedupeWindow(window time.Duration) Option {
	return func(s *Session) {
		if window > 0 {
			s.dedupeWindow = window
		}
	}
}

func WithFrameRateLimit(framesPerSecond float64, burst int) Option {
	return func(s *Session) {
		if framesPerSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(framesPerSecond), burst)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithMetrics(m Metrics, service string) Option {
	return func(s *Session) {
		s.metrics = m
		s.service = service
	}
}

func WithPublisher(publisher ports.MatchPublisher) Option {
	return func(s *Session) { s.publisher = publisher }
}

func NewSession(processor ports.FrameProcessor, profiles []domain.MissingPersonProfile, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		processor:    processor,
		logger:       logger,
		dedupeWindow: DefaultDedupeWindow,
		limiter:      rate.NewLimiter(rate.Limit(10), 10),
		now:          time.Now,
		state:        StateConnecting,
		profiles:     profiles,
		lastEmit:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

type inboundMessage struct {
	Type           string                        `json:"type"`
	Image          string                        `json:"image,omitempty"`
	MissingPersons []domain.MissingPersonProfile `json:"missingPersons,omitempty"`
	Location       string                        `json:"location,omitempty"`
}

type handshakeMessage struct {
	Type           string `json:"type"`
	StreamID       string `json:"streamId"`
	MissingPersons int    `json:"missingPersons"`
}

type matchMessage struct {
	Type string `json:"type"`
	domain.MatchResult
}

type ackMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Run drives the session until the client stops, the connection drops or ctx
// is cancelled. Frames are processed sequentially on this goroutine.
func (s *Session) Run(ctx context.Context, conn Conn) error {
	if s.metrics != nil {
		s.metrics.SessionStarted()
		defer s.metrics.SessionEnded()
	}
	defer s.setState(StateClosed)

	s.mu.RLock()
	known := len(s.profiles)
	s.mu.RUnlock()

	if err := conn.WriteJSON(handshakeMessage{
		Type:           "connected",
		StreamID:       s.id,
		MissingPersons: known,
	}); err != nil {
		return err
	}
	s.setState(StateActive)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Info("stream_session_read_closed", "stream_id", s.id, "error", err)
			return nil
		}

		switch msg.Type {
		case "frame":
			s.handleFrame(ctx, conn, msg)
		case "update_profiles":
			s.mu.Lock()
			s.profiles = msg.MissingPersons
			count := len(s.profiles)
			s.mu.Unlock()
			_ = conn.WriteJSON(ackMessage{Type: "profiles_updated", Count: count})
		case "stop":
			return nil
		default:
			_ = conn.WriteJSON(errorMessage{Type: "error", Message: "unknown message type: " + msg.Type})
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, conn Conn, msg inboundMessage) {
	if !s.limiter.Allow() {
		return
	}

	frame, err := imaging.DecodeBase64Frame(msg.Image)
	if err != nil {
		_ = conn.WriteJSON(errorMessage{Type: "error", Message: "invalid frame payload"})
		return
	}

	s.mu.RLock()
	profiles := s.profiles
	s.mu.RUnlock()
	if len(profiles) == 0 {
		return
	}

	matches, err := s.processor.ProcessFrame(ctx, frame, profiles)
	if err != nil {
		s.logger.Warn("stream_frame_failed", "stream_id", s.id, "error", err)
		_ = conn.WriteJSON(errorMessage{Type: "error", Message: "frame processing failed"})
		return
	}

	for _, match := range matches {
		if msg.Location != "" {
			match.Location = msg.Location
		}
		s.emit(ctx, conn, match)
	}
}

// emit delivers one match unless the same pair fired within the dedupe
// window.
func (s *Session) emit(ctx context.Context, conn Conn, match domain.MatchResult) {
	key := match.MissingPersonID + "|" + match.DetectedPersonID
	now := s.now()

	s.mu.Lock()
	last, seen := s.lastEmit[key]
	s.mu.Unlock()
	if seen && now.Sub(last) < s.dedupeWindow {
		if s.metrics != nil {
			s.metrics.RecordMatchThrottled(s.service)
		}
		return
	}

	if err := conn.WriteJSON(matchMessage{Type: "match", MatchResult: match}); err != nil {
		// A failed delivery must not consume the key's window.
		s.logger.Warn("stream_match_write_failed", "stream_id", s.id, "error", err)
		return
	}
	s.mu.Lock()
	s.lastEmit[key] = now
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordMatchEmitted(s.service)
	}

	if s.publisher != nil {
		event := domain.MatchEvent{StreamID: s.id, Match: match}
		if err := s.publisher.PublishMatch(ctx, event); err != nil {
			s.logger.Warn("stream_match_publish_failed", "stream_id", s.id, "event_id", match.EventID, "error", err)
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

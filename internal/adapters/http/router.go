// Package httpadapter exposes the matching pipeline and the face gallery
// over HTTP and websocket.
package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
	"github.com/farsight/personfinder/internal/observability/metrics"
	"github.com/farsight/personfinder/internal/stream"
	"github.com/farsight/personfinder/internal/vision/imaging"
)

// Health reports which optional capabilities came up at boot.
type Health struct {
	DetectorReady        bool   `json:"detectorReady"`
	PoseReady            bool   `json:"poseReady"`
	FaceEngineReady      bool   `json:"faceEngineReady"`
	SimilarityConfigured bool   `json:"similarityConfigured"`
	GalleryBackend       string `json:"galleryBackend"`
}

// Deps carries everything the router serves.
type Deps struct {
	Registrar  ports.PersonRegistrar
	Matcher    ports.FaceMatcher
	Searcher   ports.ProfileSearcher
	Stats      ports.StatsProvider
	Updater    ports.StatusUpdater
	Reader     ports.GalleryReader
	Processor  ports.FrameProcessor
	Sightings  ports.SightingStore
	Sessions   *stream.Manager
	NewSession func() *stream.Session
	Logger     *slog.Logger
	Metrics    *metrics.HTTPServerMetrics
	Health     Health
	RateLimit  *rate.Limiter
	Service    string
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Router{deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("/metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("/api/face/upload", rt.uploadPerson)
	mux.HandleFunc("/api/face/match", rt.matchImage)
	mux.HandleFunc("/api/face/search-by-description", rt.searchByDescription)
	mux.HandleFunc("/api/face/cameras/live", rt.liveStats)
	mux.HandleFunc("/api/face/case/", rt.caseRoutes)
	mux.HandleFunc("/api/face/persons", rt.listPersons)
	mux.HandleFunc("/api/process-frame", rt.processFrame)
	mux.HandleFunc("/ws/video-stream", rt.videoStream)

	handler := rateLimitMiddleware(rt.deps.RateLimit, mux)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(rt.deps.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Health
	}{Status: "ok", Health: rt.deps.Health})
}

func (rt *Router) uploadPerson(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, fileHeader, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'photo' is required"})
		return
	}
	defer file.Close()

	age, _ := strconv.Atoi(r.FormValue("age"))
	reg := ports.Registration{
		Name:        r.FormValue("name"),
		Age:         age,
		Description: r.FormValue("description"),
		LastSeen:    r.FormValue("lastSeen"),
		ReportedBy:  r.FormValue("reportedBy"),
		Filename:    fileHeader.Filename,
	}

	record, err := rt.deps.Registrar.RegisterPerson(r.Context(), reg, file)
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordFaceUpload(rt.deps.Service, err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":          true,
		"personId":         record.PersonID,
		"embeddingCreated": len(record.Embedding) > 0,
		"photoPath":        record.PhotoPath,
	})
}

func (rt *Router) matchImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'photo' is required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read photo"})
		return
	}
	img, err := imaging.DecodeImage(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	tolerance := 0.0
	if raw := r.FormValue("tolerance"); raw != "" {
		tolerance, err = strconv.ParseFloat(raw, 64)
		if err != nil || tolerance <= 0 || tolerance > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tolerance must be in (0, 1]"})
			return
		}
	}

	matches, err := rt.deps.Matcher.MatchImage(r.Context(), img, tolerance)
	if err != nil {
		writeError(w, err)
		return
	}
	if matches == nil {
		matches = []domain.FaceMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (rt *Router) searchByDescription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	hits, err := rt.deps.Searcher.SearchByDescription(r.Context(), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []domain.ProfileHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"potentialMatches": hits, "count": len(hits)})
}

func (rt *Router) liveStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.deps.Stats.LiveStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	stats.ActiveMatches = rt.deps.Sessions.ActiveSessions()
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) caseRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/face/case/")
	if personID, ok := strings.CutSuffix(rest, "/status"); ok && personID != "" && !strings.Contains(personID, "/") {
		rt.updateCaseStatus(w, r, personID)
		return
	}
	if personID, ok := strings.CutSuffix(rest, "/sightings"); ok && personID != "" && !strings.Contains(personID, "/") {
		rt.recentSightings(w, r, personID)
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected /api/face/case/{person_id}/status or .../sightings"})
}

func (rt *Router) updateCaseStatus(w http.ResponseWriter, r *http.Request, personID string) {
	if r.Method != http.MethodPut {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := rt.deps.Updater.UpdateStatus(r.Context(), personID, domain.CaseStatus(req.Status)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"personId": personID, "status": req.Status})
}

func (rt *Router) recentSightings(w http.ResponseWriter, r *http.Request, personID string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.deps.Sightings == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sighting history is not available"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be in [1, 500]"})
			return
		}
		limit = v
	}

	sightings, err := rt.deps.Sightings.RecentSightings(r.Context(), personID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if sightings == nil {
		sightings = []domain.Sighting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"personId": personID, "sightings": sightings})
}

func (rt *Router) listPersons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	records, err := rt.deps.Reader.ListPersons(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.FaceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"persons": records})
}

func (rt *Router) processFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Image          string                        `json:"image"`
		MissingPersons []domain.MissingPersonProfile `json:"missingPersons"`
		Location       string                        `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	frame, err := imaging.DecodeBase64Frame(req.Image)
	if err != nil {
		writeError(w, err)
		return
	}

	matches, err := rt.deps.Processor.ProcessFrame(r.Context(), frame, req.MissingPersons)
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range matches {
		if req.Location != "" {
			matches[i].Location = req.Location
		}
	}
	if matches == nil {
		matches = []domain.MatchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

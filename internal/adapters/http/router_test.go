package httpadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
	"github.com/farsight/personfinder/internal/stream"
)

type registrarFake struct {
	record *domain.FaceRecord
	err    error
	gotReg ports.Registration
}

func (f *registrarFake) RegisterPerson(_ context.Context, reg ports.Registration, _ io.Reader) (*domain.FaceRecord, error) {
	f.gotReg = reg
	return f.record, f.err
}

type matcherFake struct {
	matches []domain.FaceMatch
	err     error
}

func (f *matcherFake) MatchImage(context.Context, image.Image, float64) ([]domain.FaceMatch, error) {
	return f.matches, f.err
}

type searcherFake struct {
	hits []domain.ProfileHit
	err  error
}

func (f *searcherFake) SearchByDescription(context.Context, string) ([]domain.ProfileHit, error) {
	return f.hits, f.err
}

type statsFake struct {
	stats domain.LiveStats
}

func (f *statsFake) LiveStats(context.Context) (domain.LiveStats, error) {
	return f.stats, nil
}

type updaterFake struct {
	err       error
	gotID     string
	gotStatus domain.CaseStatus
}

func (f *updaterFake) UpdateStatus(_ context.Context, personID string, status domain.CaseStatus) error {
	f.gotID = personID
	f.gotStatus = status
	return f.err
}

type readerFake struct {
	records []domain.FaceRecord
}

func (f *readerFake) ListPersons(context.Context) ([]domain.FaceRecord, error) {
	return f.records, nil
}

type frameProcessorFake struct {
	matches []domain.MatchResult
	err     error
}

func (f *frameProcessorFake) ProcessFrame(context.Context, image.Image, []domain.MissingPersonProfile) ([]domain.MatchResult, error) {
	return f.matches, f.err
}

type sightingStoreFake struct {
	sightings []domain.Sighting
	err       error
	gotID     string
	gotLimit  int
}

func (f *sightingStoreFake) RecordSighting(context.Context, domain.Sighting) error { return nil }

func (f *sightingStoreFake) RecentSightings(_ context.Context, missingPersonID string, limit int) ([]domain.Sighting, error) {
	f.gotID = missingPersonID
	f.gotLimit = limit
	return f.sightings, f.err
}

type routerFixture struct {
	registrar *registrarFake
	matcher   *matcherFake
	searcher  *searcherFake
	stats     *statsFake
	updater   *updaterFake
	reader    *readerFake
	processor *frameProcessorFake
	deps      Deps
}

func newFixture() *routerFixture {
	f := &routerFixture{
		registrar: &registrarFake{},
		matcher:   &matcherFake{},
		searcher:  &searcherFake{},
		stats:     &statsFake{},
		updater:   &updaterFake{},
		reader:    &readerFake{},
		processor: &frameProcessorFake{},
	}
	f.deps = Deps{
		Registrar: f.registrar,
		Matcher:   f.matcher,
		Searcher:  f.searcher,
		Stats:     f.stats,
		Updater:   f.updater,
		Reader:    f.reader,
		Processor: f.processor,
		Sessions:  stream.NewManager(),
		Logger:    slog.New(slog.DiscardHandler),
		Health:    Health{GalleryBackend: "json"},
		Service:   "api",
	}
	return f
}

func (f *routerFixture) handler() http.Handler {
	return NewRouter(f.deps).Handler()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, fields map[string]string, fileField, filename string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	part, err := writer.CreateFormFile(fileField, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(fileData); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzReportsCapabilities(t *testing.T) {
	f := newFixture()
	f.deps.Health = Health{DetectorReady: true, GalleryBackend: "postgres"}

	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["detectorReady"] != true || resp["galleryBackend"] != "postgres" {
		t.Fatalf("unexpected healthz payload: %v", resp)
	}
}

func TestUploadPersonSuccess(t *testing.T) {
	f := newFixture()
	f.registrar.record = &domain.FaceRecord{PersonID: "MP-AAAA1111", Name: "Alice", Status: domain.StatusSearching}

	body, contentType := multipartUpload(t, map[string]string{
		"name":        "Alice",
		"age":         "30",
		"description": "red jacket",
		"lastSeen":    "central park",
	}, "photo", "alice.jpg", pngBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/api/face/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if f.registrar.gotReg.Name != "Alice" || f.registrar.gotReg.Age != 30 || f.registrar.gotReg.Filename != "alice.jpg" {
		t.Fatalf("unexpected registration: %+v", f.registrar.gotReg)
	}

	var resp struct {
		Success  bool   `json:"success"`
		PersonID string `json:"personId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.PersonID != "MP-AAAA1111" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestUploadPersonNoFaceMapsTo422(t *testing.T) {
	f := newFixture()
	f.registrar.err = domain.WrapError(domain.ErrNoFaceFound, "register", fmt.Errorf("no face"))

	body, contentType := multipartUpload(t, map[string]string{"name": "Alice"}, "photo", "alice.jpg", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/face/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestUploadPersonMissingFile(t *testing.T) {
	f := newFixture()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("name", "Alice")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/face/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMatchImageReturnsEmptyListNotNull(t *testing.T) {
	f := newFixture()

	body, contentType := multipartUpload(t, nil, "photo", "probe.jpg", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/face/match", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"matches":[]`) {
		t.Fatalf("expected empty matches array, got %s", rec.Body.String())
	}
}

func TestMatchImageRejectsBadTolerance(t *testing.T) {
	f := newFixture()

	body, contentType := multipartUpload(t, map[string]string{"tolerance": "1.5"}, "photo", "probe.jpg", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/face/match", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchByDescription(t *testing.T) {
	f := newFixture()
	f.searcher.hits = []domain.ProfileHit{{PersonID: "MP-AAAA1111", Name: "Alice", MatchScore: 2}}

	req := httptest.NewRequest(http.MethodPost, "/api/face/search-by-description",
		strings.NewReader(`{"description":"red jacket"}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		PotentialMatches []domain.ProfileHit `json:"potentialMatches"`
		Count            int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.PotentialMatches) != 1 || resp.PotentialMatches[0].PersonID != "MP-AAAA1111" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestSearchByDescriptionEmptyQuery(t *testing.T) {
	f := newFixture()
	f.searcher.err = domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("empty description"))

	req := httptest.NewRequest(http.MethodPost, "/api/face/search-by-description", strings.NewReader(`{"description":""}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLiveStats(t *testing.T) {
	f := newFixture()
	f.stats.stats = domain.LiveStats{TotalScans: 12, FacesDetected: 7, TotalMissingPersons: 3, SearchingCount: 2}

	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/face/cameras/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats domain.LiveStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalScans != 12 || stats.SearchingCount != 2 || stats.ActiveMatches != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestUpdateCaseStatus(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPut, "/api/face/case/MP-AAAA1111/status",
		strings.NewReader(`{"status":"found"}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if f.updater.gotID != "MP-AAAA1111" || f.updater.gotStatus != domain.StatusFound {
		t.Fatalf("unexpected update call: %s %s", f.updater.gotID, f.updater.gotStatus)
	}
}

func TestUpdateCaseStatusUnknownPerson(t *testing.T) {
	f := newFixture()
	f.updater.err = domain.WrapError(domain.ErrPersonNotFound, "update", fmt.Errorf("person MP-MISSING0"))

	req := httptest.NewRequest(http.MethodPut, "/api/face/case/MP-MISSING0/status",
		strings.NewReader(`{"status":"found"}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateCaseStatusBadPath(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPut, "/api/face/case/MP-AAAA1111", strings.NewReader(`{"status":"found"}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecentSightings(t *testing.T) {
	f := newFixture()
	store := &sightingStoreFake{sightings: []domain.Sighting{{
		ID:              "s-1",
		StreamID:        "stream-1",
		MissingPersonID: "MP-AAAA1111",
		Confidence:      0.82,
	}}}
	f.deps.Sightings = store

	req := httptest.NewRequest(http.MethodGet, "/api/face/case/MP-AAAA1111/sightings?limit=5", nil)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if store.gotID != "MP-AAAA1111" || store.gotLimit != 5 {
		t.Fatalf("query = (%q, %d), want (MP-AAAA1111, 5)", store.gotID, store.gotLimit)
	}
	var resp struct {
		PersonID  string            `json:"personId"`
		Sightings []domain.Sighting `json:"sightings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PersonID != "MP-AAAA1111" || len(resp.Sightings) != 1 || resp.Sightings[0].ID != "s-1" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestRecentSightingsEmptyList(t *testing.T) {
	f := newFixture()
	f.deps.Sightings = &sightingStoreFake{}

	req := httptest.NewRequest(http.MethodGet, "/api/face/case/MP-AAAA1111/sightings", nil)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"sightings":[]`) {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestRecentSightingsUnavailableWithoutStore(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/face/case/MP-AAAA1111/sightings", nil)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRecentSightingsRejectsBadLimit(t *testing.T) {
	f := newFixture()
	f.deps.Sightings = &sightingStoreFake{}

	req := httptest.NewRequest(http.MethodGet, "/api/face/case/MP-AAAA1111/sightings?limit=9000", nil)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListPersons(t *testing.T) {
	f := newFixture()
	f.reader.records = []domain.FaceRecord{{PersonID: "MP-AAAA1111", Name: "Alice"}}

	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/face/persons", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MP-AAAA1111") {
		t.Fatalf("record missing: %s", rec.Body.String())
	}
}

func TestProcessFrameAppliesLocation(t *testing.T) {
	f := newFixture()
	f.processor.matches = []domain.MatchResult{{
		EventID:          "evt-1",
		DetectedPersonID: "person_10_10",
		MissingPersonID:  "mp-1",
		Confidence:       0.9,
	}}

	payload := map[string]any{
		"image":          base64.StdEncoding.EncodeToString(pngBytes(t)),
		"missingPersons": []domain.MissingPersonProfile{{ID: "mp-1", TopColor: "Red"}},
		"location":       "camera-3",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/process-frame", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Matches []domain.MatchResult `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Location != "camera-3" {
		t.Fatalf("unexpected matches: %+v", resp.Matches)
	}
}

func TestProcessFrameInvalidImage(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/process-frame",
		strings.NewReader(`{"image":"!!not-base64!!","missingPersons":[]}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProcessFrameModelUnavailableMapsTo503(t *testing.T) {
	f := newFixture()
	f.processor.err = domain.WrapError(domain.ErrModelUnavailable, "detect", fmt.Errorf("model files missing"))

	payload := map[string]any{
		"image":          base64.StdEncoding.EncodeToString(pngBytes(t)),
		"missingPersons": []domain.MissingPersonProfile{{ID: "mp-1"}},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/process-frame", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	f := newFixture()
	f.deps.RateLimit = rate.NewLimiter(rate.Limit(0.001), 1)
	handler := f.handler()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/face/persons", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/face/persons", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}

	probe := httptest.NewRecorder()
	handler.ServeHTTP(probe, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if probe.Code != http.StatusOK {
		t.Fatalf("healthz should bypass the limiter, got %d", probe.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id header = %q, want req-42", got)
	}
}

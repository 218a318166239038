// Package bootstrap wires configuration, infrastructure adapters and use
// cases into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	httpadapter "github.com/farsight/personfinder/internal/adapters/http"
	"github.com/farsight/personfinder/internal/config"
	"github.com/farsight/personfinder/internal/core/ports"
	"github.com/farsight/personfinder/internal/core/usecase"
	"github.com/farsight/personfinder/internal/infrastructure/detect/opencv"
	"github.com/farsight/personfinder/internal/infrastructure/detect/unavailable"
	"github.com/farsight/personfinder/internal/infrastructure/face/goface"
	"github.com/farsight/personfinder/internal/infrastructure/gallery/jsonfile"
	"github.com/farsight/personfinder/internal/infrastructure/queue/nats"
	"github.com/farsight/personfinder/internal/infrastructure/repository/postgres"
	"github.com/farsight/personfinder/internal/infrastructure/resilience"
	"github.com/farsight/personfinder/internal/infrastructure/similarity/clipd"
	"github.com/farsight/personfinder/internal/infrastructure/storage/localfs"
	"github.com/farsight/personfinder/internal/observability/logging"
	"github.com/farsight/personfinder/internal/observability/metrics"
	"github.com/farsight/personfinder/internal/stream"
	"github.com/farsight/personfinder/internal/vision/colorcls"
)

const colorSeed = 42

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Gallery   ports.FaceGallery
	Storage   ports.PhotoStorage
	Queue     *nats.Queue
	Sightings ports.SightingStore

	Counters   *usecase.Counters
	ProcessUC  *usecase.ProcessFrameUseCase
	RegisterUC *usecase.RegisterPersonUseCase
	MatchUC    *usecase.MatchImageUseCase
	SearchUC   *usecase.SearchTextUseCase
	AdminUC    *usecase.CaseAdminUseCase

	Sessions   *stream.Manager
	NewSession func() *stream.Session
	Health     httpadapter.Health
	RateLimit  *rate.Limiter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	serverMetrics := metrics.NewHTTPServerMetrics(service)
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	var closers []func()
	health := httpadapter.Health{GalleryBackend: cfg.GalleryBackend}

	gallery, sightings, err := buildGallery(ctx, cfg, &closers)
	if err != nil {
		return nil, err
	}

	storage, err := localfs.New(cfg.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("init photo storage: %w", err)
	}

	var queue *nats.Queue
	if cfg.NATSEnabled {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init match queue: %w", err)
		}
		closers = append(closers, queue.Close)
	}

	detector, detectorReady := buildDetector(cfg, logger, &closers)
	pose, poseReady := buildPose(cfg, logger, &closers)
	embedder, faceReady := buildFaceEngine(cfg, logger, &closers)
	health.DetectorReady = detectorReady
	health.PoseReady = poseReady
	health.FaceEngineReady = faceReady

	palette := colorcls.DefaultPalette()
	if cfg.PalettePath != "" {
		palette, err = colorcls.LoadPalette(cfg.PalettePath)
		if err != nil {
			return nil, fmt.Errorf("load palette: %w", err)
		}
	}
	classifier := colorcls.New(palette, 3, colorSeed)

	var similarity ports.SimilarityProvider
	if cfg.SimilarityURL != "" {
		similarity = clipd.New(cfg.SimilarityURL,
			clipd.WithExecutor(executor),
			clipd.WithTimeout(time.Duration(cfg.SimilarityTimeoutSeconds)*time.Second),
		)
		health.SimilarityConfigured = true
	}

	counters := usecase.NewCounters()
	observer := &metrics.PipelineObserver{Metrics: serverMetrics, Service: service, Source: "pipeline"}
	processUC := usecase.NewProcessFrameUseCase(detector, pose, classifier, similarity, counters, logger,
		usecase.WithThresholds(cfg.DetectionConfidence, cfg.MatchThreshold),
		usecase.WithObserver(observer))
	registerUC := usecase.NewRegisterPersonUseCase(embedder, gallery, storage, logger)
	matchUC := usecase.NewMatchImageUseCase(embedder, gallery, counters,
		usecase.WithMatchObserver(observer))
	searchUC := usecase.NewSearchTextUseCase(gallery)
	adminUC := usecase.NewCaseAdminUseCase(gallery, counters)

	sessions := stream.NewManager()
	newSession := func() *stream.Session {
		opts := []stream.Option{
			stream.WithDedupeWindow(time.Duration(cfg.DedupeWindowSeconds) * time.Second),
			stream.WithFrameRateLimit(cfg.StreamMaxFPS, int(cfg.StreamMaxFPS)+1),
			stream.WithMetrics(serverMetrics, service),
		}
		if queue != nil {
			opts = append(opts, stream.WithPublisher(queue))
		}
		return stream.NewSession(processUC, nil, logger, opts...)
	}

	var limiter *rate.Limiter
	if cfg.APIRateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), cfg.APIRateLimitBurst)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    serverMetrics,
		Gallery:    gallery,
		Storage:    storage,
		Queue:      queue,
		Sightings:  sightings,
		Counters:   counters,
		ProcessUC:  processUC,
		RegisterUC: registerUC,
		MatchUC:    matchUC,
		SearchUC:   searchUC,
		AdminUC:    adminUC,
		Sessions:   sessions,
		NewSession: newSession,
		Health:     health,
		RateLimit:  limiter,
		closeFn: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func buildGallery(ctx context.Context, cfg config.Config, closers *[]func()) (ports.FaceGallery, ports.SightingStore, error) {
	switch cfg.GalleryBackend {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })

		faces := postgres.NewFaceRepository(db)
		if err := faces.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure faces schema: %w", err)
		}
		sightings := postgres.NewSightingRepository(db)
		if err := sightings.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure sightings schema: %w", err)
		}
		return faces, sightings, nil
	case "json", "":
		gallery, err := jsonfile.New(cfg.GalleryPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open gallery file: %w", err)
		}
		return gallery, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown gallery backend %q", cfg.GalleryBackend)
	}
}

func buildDetector(cfg config.Config, logger *slog.Logger, closers *[]func()) (ports.PersonDetector, bool) {
	detector, err := opencv.NewPersonDetector(cfg.DetectorModelPath, cfg.DetectorConfigPath, cfg.DetectionConfidence)
	if err != nil {
		logger.Warn("detector_unavailable", "model", cfg.DetectorModelPath, "error", err)
		return unavailable.NewDetector("detection model not loaded"), false
	}
	*closers = append(*closers, func() { _ = detector.Close() })
	return detector, true
}

func buildPose(cfg config.Config, logger *slog.Logger, closers *[]func()) (ports.PoseEstimator, bool) {
	pose, err := opencv.NewPoseEstimator(cfg.PoseModelPath)
	if err != nil {
		logger.Warn("pose_unavailable", "model", cfg.PoseModelPath, "error", err)
		return unavailable.NewPose("pose model not loaded"), false
	}
	*closers = append(*closers, func() { _ = pose.Close() })
	return pose, true
}

func buildFaceEngine(cfg config.Config, logger *slog.Logger, closers *[]func()) (ports.FaceEmbedder, bool) {
	engine, err := goface.New(cfg.FaceModelsDir)
	if err != nil {
		logger.Warn("face_engine_unavailable", "models_dir", cfg.FaceModelsDir, "error", err)
		return unavailable.NewEmbedder("face models not loaded"), false
	}
	*closers = append(*closers, engine.Close)
	return engine, true
}

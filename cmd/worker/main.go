package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farsight/personfinder/internal/bootstrap"
	"github.com/farsight/personfinder/internal/config"
	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/observability/metrics"
)

const service = "personfinder-worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if app.Queue == nil {
		log.Fatal("worker requires NATS_ENABLED=true")
	}
	if app.Sightings == nil {
		log.Fatal("worker requires GALLERY_BACKEND=postgres for sighting storage")
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", workerMetrics.Handler())
		app.Logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := http.ListenAndServe(":"+cfg.WorkerMetricsPort, mux); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("worker_metrics_error", "error", err)
		}
	}()

	app.Logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeMatches(ctx, func(handlerCtx context.Context, event domain.MatchEvent) error {
		start := time.Now()
		workerMetrics.StartEvent()
		workerMetrics.ObserveEventLag(service, start.Sub(event.Match.Timestamp))

		recordCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		recordErr := app.Sightings.RecordSighting(recordCtx, domain.Sighting{
			ID:               event.Match.EventID,
			StreamID:         event.StreamID,
			MissingPersonID:  event.Match.MissingPersonID,
			DetectedPersonID: event.Match.DetectedPersonID,
			Confidence:       event.Match.Confidence,
			TopColor:         event.Match.Attributes.TopColor,
			BottomColor:      event.Match.Attributes.BottomColor,
			SightedAt:        event.Match.Timestamp,
		})
		workerMetrics.FinishEvent(service, time.Since(start), recordErr)
		return recordErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

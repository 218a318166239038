package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/farsight/personfinder/internal/adapters/http"
	"github.com/farsight/personfinder/internal/bootstrap"
	"github.com/farsight/personfinder/internal/config"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "personfinder-api")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.Deps{
		Registrar:  app.RegisterUC,
		Matcher:    app.MatchUC,
		Searcher:   app.SearchUC,
		Stats:      app.AdminUC,
		Updater:    app.AdminUC,
		Reader:     app.AdminUC,
		Processor:  app.ProcessUC,
		Sightings:  app.Sightings,
		Sessions:   app.Sessions,
		NewSession: app.NewSession,
		Logger:     app.Logger,
		Metrics:    app.Metrics,
		Health:     app.Health,
		RateLimit:  app.RateLimit,
		Service:    "personfinder-api",
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		app.Logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("api_shutdown_error", "error", err)
	}
	app.Sessions.Shutdown()
	app.Sessions.Wait()
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lanedesk/internal/broadcast"
	httputil "lanedesk/pkg/http"
	"lanedesk/pkg/kafka"
	kafka_config "lanedesk/pkg/kafka/config"
	kafkamiddleware "lanedesk/pkg/kafka/middleware"
	"lanedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// kioskfeed tails the lane-state topic and serves the latest known
// state per lane over HTTP. Kiosks and wall displays poll this
// instead of the engine.
func main() {
	log := logger.New(logger.Config{
		Level:   os.Getenv("LANEDESK_LOG_LEVEL"),
		Format:  logger.JSON,
		Service: "kioskfeed",
	})

	port := os.Getenv("KIOSKFEED_PORT")
	if port == "" {
		port = "8090"
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		log.Fatal("Invalid Kafka configuration", "error", err)
	}

	observer := broadcast.NewStateObserver(log)
	consumer, err := kafka.NewConsumer(kafkaCfg, kafkaCfg.StateTopic, observer.Handle)
	if err != nil {
		log.Fatal("Failed to create state consumer", "error", err)
	}
	consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("State consumer failed", "error", err)
		}
	}()

	router := httprouter.New()
	router.GET("/api/v1/feed/lanes", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := httputil.WriteSuccess(w, map[string]any{"lanes": observer.Lanes()}); err != nil {
			log.Error("failed to write response", "handler", "Lanes", "error", err)
		}
	})
	router.GET("/api/v1/feed/lanes/:laneId", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		state, ok := observer.State(ps.ByName("laneId"))
		if !ok {
			if err := httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{
				Error: "No state observed for lane",
			}); err != nil {
				log.Error("failed to write response", "handler", "LaneState", "error", err)
			}
			return
		}
		if err := httputil.WriteSuccess(w, state); err != nil {
			log.Error("failed to write response", "handler", "LaneState", "error", err)
		}
	})

	server := &http.Server{Addr: ":" + port, Handler: router}
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Starting kiosk feed server", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal("Kiosk feed server failed", "error", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig)
		cancel()
		if err := consumer.Close(); err != nil {
			log.Error("Failed to close consumer", "error", err)
		}
		if err := server.Close(); err != nil {
			log.Error("Failed to close server", "error", err)
		}
	}
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksaver/powermon/internal/api"
	"github.com/ksaver/powermon/internal/auth"
	"github.com/ksaver/powermon/internal/config"
	"github.com/ksaver/powermon/internal/devstore"
	"github.com/ksaver/powermon/internal/influx"
	"github.com/ksaver/powermon/internal/mqtt"
	"github.com/ksaver/powermon/internal/ws"
)

func main() {
	configPath := flag.String("config", ".", "path to the configuration file directory")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	store := devstore.New(cfg.Devices.OnlineWindow)
	sink := influx.NewSink(cfg.Influx, log.With().Str("component", "influx").Logger())

	hub := ws.NewHub(log.With().Str("component", "hub").Logger())
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	subscriber := mqtt.NewSubscriber(cfg.MQTT, store, sink, hub,
		log.With().Str("component", "mqtt").Logger())
	if cfg.MQTT.Host != "" {
		if err := subscriber.Start(); err != nil {
			// Keep serving reads; the client retries in the background.
			log.Error().Err(err).Msg("mqtt start failed")
		}
	} else {
		log.Warn().Msg("mqtt host empty, subscriber not started")
	}

	authMgr := auth.NewManager(cfg.Auth)
	handler := api.NewHandler(store, sink, hub, authMgr,
		log.With().Str("component", "api").Logger())

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received termination signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}

	subscriber.Stop()
	stopHub()
	sink.Close()

	log.Info().Msg("shutdown complete")
}

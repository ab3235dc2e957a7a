package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinepos/internal/bridge"
	"cinepos/internal/clock"
	"cinepos/internal/config"
	"cinepos/internal/dispatch"
	"cinepos/internal/engine"
	"cinepos/internal/infra"
	"cinepos/internal/model"
	"cinepos/internal/notify"
	"cinepos/internal/poller"
	"cinepos/internal/push"
	"cinepos/internal/receipt"
	"cinepos/internal/router"
	"cinepos/internal/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.TheaterID == "" {
		log.Fatal().Msg("THEATER_ID is required")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := notify.NewBroker()
	session := store.NewSessionState()
	cache := store.NewOrderCache(rdb)
	prefs := store.NewPrefs(rdb)

	bridgeClient := bridge.NewClient(bridge.Config{
		URL:            cfg.BridgeWSURL,
		ConnectTimeout: cfg.BridgeConnectTimeout,
		ReconnectDelay: cfg.BridgeReconnectDelay,
		MaxReconnects:  cfg.BridgeMaxReconnects,
	}, prefs,
		bridge.OnStateChange(func(s bridge.State) {
			broker.Publish(notify.Event{Type: notify.EventBridgeState, Data: s.String()})
		}),
		bridge.OnConnectionDropped(func() {
			// orders interrupted mid-print become reprintable
			session.ReleaseAllDispatches()
		}),
	)

	breaker := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	orders := infra.NewOrdersClient(cfg.APIBaseURL)
	window := model.Day(time.Now())
	poll := poller.New(cfg.TheaterID, orders, breaker, cfg.PollInterval, window)

	info := receipt.TheaterInfo{
		Name:     cfg.TheaterName,
		FSSAI:    cfg.FSSAINo,
		GST:      cfg.GSTNo,
		LogoPath: cfg.LogoPath,
	}
	dispatcher := dispatch.NewDispatcher(cfg.TheaterID, info, bridgeClient, prefs, session, clock.Real{}, dispatch.DefaultConfig())

	notifier := notify.NewNotifier(cfg.NotificationAudioURL, broker)
	flasher := notify.NewFlasher(clock.Real{}, broker)

	eng := engine.New(cfg.TheaterID, session, cache, poll, dispatcher, notifier, flasher, broker, clock.Real{}, window)

	go poll.Run(ctx)
	go eng.Run(ctx)

	if cfg.AMQPURL != "" {
		consumer := push.NewConsumer(cfg.AMQPURL, cfg.TheaterID, eng.HandlePush)
		go consumer.Run(ctx)
	} else {
		log.Info().Msg("push channel disabled, relying on polling only")
	}

	// A previous session that was connected when it stopped reconnects
	// without operator action.
	if auto, err := prefs.AutoConnect(ctx); err == nil && auto {
		go func() {
			if err := bridgeClient.Connect(ctx); err != nil {
				log.Warn().Err(err).Msg("bridge auto-connect failed")
			}
		}()
	}

	r := router.New(cfg, router.Deps{
		Engine:  eng,
		Bridge:  bridgeClient,
		Broker:  broker,
		Prefs:   prefs,
		Redis:   rdb,
		Breaker: breaker,
	})

	// No WriteTimeout: /v1/events is a long-lived SSE stream.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("counter agent listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("agent exited")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/clients/game_client"
	"github.com/mcdev12/chimera/go/internal/gateway"
	"github.com/mcdev12/chimera/go/internal/session"
)

// leaveFallback is a secondary leave transport that must be flushed on exit.
type leaveFallback interface {
	session.LeaveDispatcher
	Close(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig(os.Getenv("CHIMERA_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	client := game_client.NewGameClient(cfg.APIURL, game_client.Credentials{
		SessionCookie: cfg.SessionCookie,
		BearerToken:   cfg.SessionToken,
	})

	primary := session.NewKeepaliveDispatcher(client, cfg.LeaveTimeout)
	fallback, err := setupFallback(cfg, client)
	if err != nil {
		log.Fatal().Err(err).Str("fallback", cfg.Leave.Fallback).Msg("failed to set up leave fallback")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(session.Config{
		GameID:       cfg.GameID,
		PlayerID:     cfg.PlayerID,
		PollInterval: cfg.PollInterval,
	}, session.Deps{
		API:      client,
		Primary:  primary,
		Fallback: fallback,
		Alert: func(err error) {
			log.Warn().Err(err).Str("game_id", cfg.GameID).Msg("alert")
		},
		OnUnauthorized: func() {
			log.Error().Str("game_id", cfg.GameID).Msg("credentials rejected; sign in again")
			cancel()
		},
	})

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.AllowedOrigins = cfg.Gateway.AllowedOrigins
	gatewayService := gateway.NewService(gatewayConfig, sess)
	server := setupServer(cfg, gatewayService)

	log.Info().
		Str("api_url", cfg.APIURL).
		Str("game_id", cfg.GameID).
		Str("player_id", cfg.PlayerID).
		Dur("poll_interval", cfg.PollInterval).
		Str("leave_fallback", cfg.Leave.Fallback).
		Str("port", cfg.Gateway.Port).
		Msg("starting chimera client")

	if err := sess.Mount(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to mount session")
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
	}

	sess.Abandon(session.ReasonUnload)
	sess.Unmount()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := primary.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("leave requests still in flight at shutdown")
	}
	if err := fallback.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush leave fallback")
	}

	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("chimera client shutdown complete")
}

func setupFallback(cfg *Config, client *game_client.GameClient) (leaveFallback, error) {
	if cfg.Leave.Fallback == FallbackNATS {
		natsCfg := session.DefaultNATSBeaconConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		beacon, err := session.NewNATSBeacon(natsCfg)
		if err != nil {
			return nil, err
		}
		log.Warn().
			Str("subject", beacon.Subject("*")).
			Msg("NATS leave fallback needs a relay that forwards to POST /leave")
		return beacon, nil
	}
	return session.NewHTTPBeacon(client, cfg.LeaveTimeout), nil
}

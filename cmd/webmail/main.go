// Command webmail runs the stateless webmail backend: an HTTP API that
// opens a fresh mail session per request, with credentials carried in an
// encrypted session token instead of server-side state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nerzen/webmail/internal/api"
	"github.com/nerzen/webmail/internal/config"
	"github.com/nerzen/webmail/internal/credential"
	"github.com/nerzen/webmail/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webmail: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	secret := cfg.Token.Secret
	if secret == "" {
		secret, err = credential.TokenSecret(cfg.Token.KeyringService)
		if err != nil {
			log.Fatal().Err(err).Msg("no token secret available")
		}
	}
	codec, err := token.NewCodec(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("building token codec")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewServer(cfg, codec, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("webmail listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-redis/redis/v8"
	"github.com/jrsteele09/as2-portal-session/auth"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/jrsteele09/as2-portal-session/internal/logging"
	"github.com/jrsteele09/as2-portal-session/server"
	"github.com/jrsteele09/as2-portal-session/token"
	"github.com/jrsteele09/as2-portal-session/token/keys"
	refreshrepofake "github.com/jrsteele09/as2-portal-session/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/as2-portal-session/users/repofake"
	"github.com/rs/zerolog/log"
)

const revocationCleanupInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c)
	displayAppname(c.GetAppName())

	handler, tokens, err := newServer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tokens.RunRevocationCleanup(ctx, revocationCleanupInterval)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(httpServer)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func newServer(c config.Config) (*server.Server, *token.Manager, error) {
	keyPair, err := keys.LoadOrGenerate(c.GetSigningKeyID(), c.GetSigningKeyPEM())
	if err != nil {
		return nil, nil, fmt.Errorf("keys.LoadOrGenerate: %w", err)
	}
	revoked, err := newRevokedTokenCache(c)
	if err != nil {
		return nil, nil, err
	}
	tokens := token.New(refreshrepofake.NewFakeRefreshTokenRepo(), keys.NewKeyPairSigner(keyPair), c,
		token.WithRevokedTokenCache(revoked))

	authService, err := auth.NewService(auth.Repos{Users: fakeuserrepo.NewFakeUserRepo()}, tokens, c)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.NewService: %w", err)
	}

	s, err := server.New(c, authService)
	if err != nil {
		return nil, nil, err
	}
	return s, tokens, nil
}

func newRevokedTokenCache(c config.Config) (token.RevokedTokenCache, error) {
	switch c.GetRevocationStore() {
	case "", "memory":
		return token.NewInMemoryRevokedTokenCache(), nil
	case "redis":
		opt, err := redis.ParseURL(c.GetRedisURL())
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Str("redis", opt.Addr).Msg("sharing token revocations through redis")
		return token.NewRedisRevokedTokenCache(client, c.GetRedisPrefix()), nil
	default:
		return nil, fmt.Errorf("unknown revocation store %q", c.GetRevocationStore())
	}
}

func listenAndServe(httpServer *http.Server) error {
	log.Info().Msgf("Server listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

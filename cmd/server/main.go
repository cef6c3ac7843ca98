package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-bridge/chat"
	"github.com/jrsteele09/go-identity-bridge/internal/config"
	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
	"github.com/jrsteele09/go-identity-bridge/linking"
	"github.com/jrsteele09/go-identity-bridge/oauthstate"
	"github.com/jrsteele09/go-identity-bridge/profiles"
	"github.com/jrsteele09/go-identity-bridge/providers"
	"github.com/jrsteele09/go-identity-bridge/server"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/sessions/redisrepo"
	"github.com/jrsteele09/go-identity-bridge/sessions/sqliterepo"
	"github.com/jrsteele09/go-identity-bridge/verification"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	handler, err := buildHandler(ctx, c, store)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if c.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func openStore(ctx context.Context, c config.Config) (sessions.Store, func(), error) {
	switch c.GetStorage() {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", c.GetRedisAddr(), err)
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("Using redis session store")
		return redisrepo.New(client, c.GetSessionTTL()), func() { _ = client.Close() }, nil

	case config.StorageSQLite:
		db, err := sqliterepo.OpenDB(c.GetSQLitePath())
		if err != nil {
			return nil, nil, err
		}
		repo, err := sqliterepo.New(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info().Str("path", c.GetSQLitePath()).Msg("Using sqlite session store")
		return repo, func() { _ = db.Close() }, nil

	default:
		log.Warn().Msg("Using in-memory session store, sessions are lost on restart")
		return sessions.NewInMemoryRepo(), func() {}, nil
	}
}

func buildHandler(ctx context.Context, c config.Config, store sessions.Store) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var codec oauthstate.Codec = oauthstate.NewJSONCodec()
	if secret := c.GetStateSigningSecret(); secret != "" {
		signed, err := oauthstate.NewSignedCodec(secret, c.GetStateMaxAge())
		if err != nil {
			return nil, err
		}
		codec = signed
	} else {
		log.Warn().Msg("STATE_SIGNING_SECRET not set, OAuth state is sent unsigned")
	}

	registry := providers.FromConfig(c, providers.WithTimeout(c.GetProviderTimeout()))
	configured := registry.All()
	if len(configured) == 0 {
		log.Warn().Msg("No identity providers configured")
	}
	for _, p := range configured {
		log.Info().Str("provider", p.ID().String()).Msg("Identity provider enabled")
	}

	challenge := verification.NewChallenge(store,
		verification.WithCodeGenerator(verification.NumericCode(c.GetVerificationCodeLength())),
		verification.WithAttemptLimiter(verification.NewAttemptLimiter(c.GetVerificationMaxAttempts(), c.GetVerificationAttemptWindow())),
		verification.WithMetrics(m),
	)
	orchestrator := linking.NewOrchestrator(codec, sessions.NewLocator(store), store, registry, challenge, m)

	deps := server.Deps{
		Callbacks: orchestrator,
		Activities: chat.NewIntake(store, orchestrator, challenge, registry,
			chat.WithCodeLength(c.GetVerificationCodeLength()),
			chat.WithMetrics(m),
		),
		Profiles: profiles.NewAggregator(store, registry, m),
		IDTokens: server.NewTokenVerifier(ctx, c.GetIDTokenIssuer(), c.GetIDTokenJWKSURL(), c.GetAppID()),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if appID := c.GetBotAppID(); appID != "" {
		deps.BotTokens = server.NewTokenVerifier(ctx, c.GetBotTokenIssuer(), c.GetBotTokenJWKSURL(), appID)
	} else {
		log.Warn().Msg("BOT_APP_ID not set, chat activities are accepted without a connector token")
	}
	if c.GetAppID() == "" {
		log.Warn().Msg("APP_ID not set, id_token audience is not checked")
	} else if c.GetAppPassword() != "" {
		deps.OnBehalfOf = providers.NewOnBehalfOf(c.GetAppID(), c.GetAppPassword(), providers.WithTimeout(c.GetProviderTimeout()))
		log.Info().Msg("Graph on-behalf-of routes enabled")
	}

	return server.New(c, deps)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

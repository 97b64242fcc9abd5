package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wisegate/wisegate/internal/cache"
	"github.com/wisegate/wisegate/internal/config"
	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/internal/engine"
	"github.com/wisegate/wisegate/internal/events"
	"github.com/wisegate/wisegate/internal/handler"
	"github.com/wisegate/wisegate/internal/hub"
	"github.com/wisegate/wisegate/internal/middleware"
	"github.com/wisegate/wisegate/internal/relay"
	"github.com/wisegate/wisegate/internal/repository"
	"github.com/wisegate/wisegate/internal/service"
	"github.com/wisegate/wisegate/pkg/database"
	"github.com/wisegate/wisegate/pkg/jwt"
	"github.com/wisegate/wisegate/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting wisegate")

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.ChatSession{}, &domain.ChatMessage{}); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}
	repo := repository.NewGormChatRepository(db)

	// Session cache (optional)
	var sessionCache cache.SessionCache = cache.NoopSessionCache{}
	if cfg.Redis.Address != "" {
		redisCache, err := cache.NewRedisSessionCache(cfg.Redis)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		sessionCache = redisCache
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	// Turn event producer (optional)
	var producer events.TurnProducer = events.NoopTurnProducer{}
	if cfg.Kafka.Brokers != "" {
		kafkaProducer, err := events.NewConfluentTurnProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		defer kafkaProducer.Close()
		producer = kafkaProducer
		l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}

	// Auth
	jwtManager := jwt.NewManager(cfg.Auth.SigningKey, cfg.Auth.TokenTTL, cfg.Log.ServiceName)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, cfg.Auth.CookieName)

	// Realtime pipeline: hub <- relay <- engine stream
	wsHub := hub.NewHub()
	tokenRelay := relay.New(wsHub)
	stream := engine.NewStreamClient(engine.StreamConfig{
		URL:        cfg.Engine.StreamURL,
		MinBackoff: cfg.Engine.MinBackoff,
		MaxBackoff: cfg.Engine.MaxBackoff,
	}, tokenRelay.HandleAnswerToken)

	// Answer orchestration
	engineClient := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.RequestTimeout)
	answerService := service.NewAnswerService(repo, sessionCache, engineClient, producer)

	// HTTP surface
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), log.GinMiddleware(l))

	handler.NewHTTPHandler(answerService).RegisterRoutes(r, authMiddleware)
	r.GET("/ws", handler.NewWSHandler(wsHub, jwtManager, cfg.WebSocket, cfg.Auth.CookieName).Connect)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stream.Run(ctx)
		return nil
	})

	g.Go(func() error {
		l.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		l.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Fatal().Err(err).Msg("server error")
	}

	l.Info().Msg("wisegate stopped")
}

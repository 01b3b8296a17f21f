package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"marketchat/internal/app/outbox"
	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/notification"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	mongostore "marketchat/internal/infra/db/mongo"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/obs"
	outboxrelay "marketchat/internal/infra/outbox"
	"marketchat/internal/infra/realtime"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("dotenv load failed", "error", err)
	}
	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	app.start(ctx, logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, app.health, app.handlers)
	go func() {
		<-ctx.Done()
		app.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", app.storeName)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type stores struct {
	conversations domainchat.ConversationRepository
	messages      domainchat.MessageRepository
	notifications notification.Repository
	users         domainuser.Directory
	listings      listings.Catalog
	outbox        outbox.Outbox
	queue         outbox.Queue
}

type application struct {
	storeName string
	handlers  ginserver.Handlers
	health    obs.HealthHandlers
	hub       *realtime.Hub
	bridge    *realtime.RedisBridge
	worker    *outboxrelay.Worker
	closers   []func(context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{health: obs.HealthHandlers{Checks: map[string]obs.Check{}}}

	st, err := app.openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app.hub = realtime.NewHub(logger)
	var notifier chatservice.Notifier = app.hub
	var presence *realtime.Presence
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, err
		}
		app.bridge = realtime.NewRedisBridge(rdb, cfg.RedisChannel, app.hub, logger)
		notifier = app.bridge
		presence = realtime.NewPresence(rdb, cfg.PresenceTTL)
		app.health.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
	}

	svc := &chatservice.Service{
		Conversations: st.conversations,
		Messages:      st.messages,
		Notifications: st.notifications,
		Users:         st.users,
		Listings:      st.listings,
		Notifier:      notifier,
		Outbox:        st.outbox,
		Encoder:       outbox.JSONEventEncoder{},
		StoreTimeout:  cfg.StoreTimeout,
		Logger:        logger,
	}

	gateway := realtime.NewGateway(app.hub, svc, realtime.GatewayConfig{
		AllowedOrigins: cfg.WSAllowedOrigins,
		PingInterval:   cfg.WSPingInterval,
		PongWait:       cfg.WSPongWait,
	}, logger)
	auth := ginserver.AuthMiddleware{Users: st.users, Logger: logger, TrustUserHeader: cfg.IsDevelopment()}
	if cfg.JWTSecret != "" {
		tokens, err := security.NewHMACTokens(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		gateway.Tokens = tokens
		gateway.AllowUserID = cfg.IsDevelopment()
		auth.Tokens = tokens
	}
	if presence != nil {
		gateway.Presence = presence
	}

	app.handlers = ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Chat: svc, Logger: logger},
		Notifications:  ginserver.NotificationHandler{Chat: svc, Logger: logger},
		Socket:         gateway.Handle,
		AuthMiddleware: auth.Handle,
	}
	if presence != nil {
		app.handlers.Presence = ginserver.PresenceHandler{Presence: presence, Logger: logger}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, "marketchat")
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
		app.worker = &outboxrelay.Worker{
			Queue:       st.queue,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
	}
	return app, nil
}

func (a *application) openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.MongoURI == "" {
		a.storeName = "memory"
		users := memory.NewUserDirectory()
		catalog := memory.NewListingCatalog()
		path := getenv("DIRECTORY_FIXTURES", defaultFixturesPath)
		if err := loadDirectoryFixtures(path, users, catalog, logger); err != nil {
			logger.Warn("directory fixtures load failed", "error", err, "path", path)
		}
		st := stores{
			conversations: memory.NewConversationRepository(),
			messages:      memory.NewMessageRepository(),
			notifications: memory.NewNotificationRepository(),
			users:         users,
			listings:      catalog,
		}
		// Without a relay nothing would ever drain the in-memory outbox.
		if len(cfg.KafkaBrokers) > 0 {
			box := memory.NewOutbox()
			st.outbox, st.queue = box, box
		}
		return st, nil
	}

	a.storeName = "mongo"
	client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, client.Close)
	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Ping(setupCtx); err != nil {
		return stores{}, err
	}
	if err := mongostore.EnsureIndexes(setupCtx, client.DB); err != nil {
		return stores{}, err
	}
	if err := mongostore.Migrate(setupCtx, client.DB, logger); err != nil {
		return stores{}, err
	}
	box, err := outboxrelay.NewStore(setupCtx, client.DB)
	if err != nil {
		return stores{}, err
	}
	a.health.Checks["mongo"] = client.Ping
	return stores{
		conversations: mongostore.NewConversationRepository(client.DB),
		messages:      mongostore.NewMessageRepository(client.DB),
		notifications: mongostore.NewNotificationRepository(client.DB),
		users:         mongostore.NewUserDirectory(client.DB),
		listings:      mongostore.NewListingCatalog(client.DB),
		outbox:        box,
		queue:         box,
	}, nil
}

// start launches the background loops. They stop with ctx.
func (a *application) start(ctx context.Context, logger *slog.Logger) {
	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime bridge stopped", "error", err)
			}
		}()
	}
	if a.worker != nil {
		go func() {
			if err := a.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

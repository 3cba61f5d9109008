package configuration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/auth"
	"github.com/abhigit-saha/hack36-sub000/internal/db"
	"github.com/abhigit-saha/hack36-sub000/internal/handler"
	"github.com/abhigit-saha/hack36-sub000/internal/hub"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/ratelimit"
	"github.com/abhigit-saha/hack36-sub000/internal/repo"
	"github.com/abhigit-saha/hack36-sub000/internal/service"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	ChatService    service.ChatService
	Hub            *hub.Hub
	Janitor        *hub.Janitor
	Verifier       *auth.Verifier
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
}

// BuildContainer wires every component from config. The caller starts the hub
// and janitor and must call Close.
func BuildContainer(config *Config) (*Container, error) {
	logger, err := NewLogger(config.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	c := &Container{
		Config: *config,
		Logger: logger,
	}

	store, err := c.buildStore()
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	limiter := c.buildLimiter()
	c.Verifier = auth.NewVerifier(config.Auth.JWTSecret, config.Auth.CookieName)

	opTimeout := config.Store.OperationTimeout.Duration
	rooms := hub.NewRooms(config.Hub.SendTimeout.Duration, logger.Named("rooms"))
	c.ChatService = service.NewChatService(store, rooms, limiter, logger.Named("chat"))
	presence := hub.NewPresence(store, opTimeout, logger.Named("presence"))

	c.Hub = hub.NewHub(rooms, presence, c.ChatService, c.Verifier, hub.Options{
		HeartbeatInterval: config.Presence.HeartbeatInterval.Duration,
		PongWait:          config.Presence.PongWait.Duration,
		SendTimeout:       config.Hub.SendTimeout.Duration,
		SendBuffer:        config.Hub.SendBuffer,
		Workers:           config.Hub.Workers,
		MaxMessageSize:    config.Hub.MaxMessageSize,
		OperationTimeout:  opTimeout,
		AllowedOrigins:    config.Server.AllowedOrigins,
	}, logger.Named("hub"))

	c.Janitor = hub.NewJanitor(store, hub.JanitorOptions{
		Interval:    config.Presence.JanitorInterval.Duration,
		StaleAfter:  config.Presence.StaleAfter.Duration,
		Concurrency: config.Presence.JanitorConcurrency,
		ItemTimeout: opTimeout,
	}, logger.Named("janitor"))

	c.ChatHandler = handler.NewChatHandler(c.ChatService)
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub, c.Janitor))

	return c, nil
}

func (c *Container) buildStore() (repo.ConversationRepository, error) {
	logger := c.Logger.Named("repo")

	switch c.Config.Store.Driver {
	case "memory":
		logger.Warn("using in-memory conversation store; data is lost on restart")
		return repo.NewMemoryConversationRepository(logger), nil
	default:
		con, err := db.OpenConnection(c.Config.Mongo.Uri, c.Config.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		c.mongoClient = con

		mongoRepo := db.NewRepository[model.Conversation](con, c.Config.Mongo.ConversationsCollection)
		store := repo.NewMongoConversationRepository(mongoRepo, logger)
		if err := store.EnsureIndexes(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	}
}

// buildLimiter returns a Redis limiter, or a no-op one when Redis is not
// configured or unreachable.
func (c *Container) buildLimiter() ratelimit.Limiter {
	if c.Config.Redis.Addr == "" {
		return ratelimit.Noop()
	}

	client, err := ratelimit.NewRedisClient(c.Config.Redis.Addr, c.Config.Redis.Password, c.Config.Redis.DB)
	if err != nil {
		c.Logger.Warn("redis unavailable, rate limiting disabled",
			zap.String("addr", c.Config.Redis.Addr),
			zap.Error(err),
		)
		return ratelimit.Noop()
	}
	c.redisClient = client

	return ratelimit.NewRedisLimiter(client, c.Config.Redis.MessagesPerMinute, time.Minute, c.Logger.Named("ratelimit"))
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	var errs []error

	if c.Janitor != nil {
		c.Janitor.Stop()
	}

	// Stop the hub (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis connection: %w", err))
		}
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MongoDB connection: %w", err))
		}
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	return errors.Join(errs...)
}

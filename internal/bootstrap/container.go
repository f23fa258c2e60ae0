package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"memcontext-be/internal/config"
	"memcontext-be/internal/controller"
	"memcontext-be/internal/enrichment"
	"memcontext-be/internal/entity"
	"memcontext-be/internal/handler"
	"memcontext-be/internal/metrics"
	"memcontext-be/internal/model"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/registry"
	"memcontext-be/internal/relay"
	"memcontext-be/internal/repository/contract"
	"memcontext-be/internal/repository/implementation"
	"memcontext-be/internal/repository/memory"
	redisRepo "memcontext-be/internal/repository/redis"
	"memcontext-be/internal/service"
	"memcontext-be/internal/stream"
	"memcontext-be/internal/websocket"
	"memcontext-be/internal/worker"
	"memcontext-be/pkg/catalog"
	"memcontext-be/pkg/database"
	"memcontext-be/pkg/llm"
	"memcontext-be/pkg/llm/factory"
	"memcontext-be/pkg/memcontext"

	pktNats "memcontext-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	MemoryController controller.IMemoryController
	ChatController   controller.IChatController
	IngestController controller.IIngestController

	// Background Services (Exposed for main.go to run)
	ConsumerService     service.IConsumerService
	NotificationService *service.NotificationService

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	Registry *registry.Registry
	Pool     *worker.Pool
	Metrics  *metrics.Metrics
	Logger   logger.ILogger

	closers []func(ctx context.Context) error
}

type LLMFactory func(cfg factory.ProviderConfig) (llm.LLMProvider, error)

type options struct {
	llmFactory LLMFactory
	catalog    *catalog.Catalog
	logger     logger.ILogger
}

type Option func(*options)

// WithLLMFactory replaces the provider factory used for every session.
func WithLLMFactory(f LLMFactory) Option {
	return func(o *options) { o.llmFactory = f }
}

// WithCatalog skips loading the catalog from cfg.Ads.DataDir.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

func WithLogger(l logger.ILogger) Option {
	return func(o *options) { o.logger = l }
}

func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	o := options{llmFactory: factory.NewLLMProvider}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{}

	// 1. Core Facades
	sysLogger := o.logger
	llmLogger := o.logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
		llmLogger = logger.NewIsolatedLogger(cfg.App.LLMLogFilePath)
		c.closers = append(c.closers, func(context.Context) error {
			return errors.Join(llmLogger.Sync(), sysLogger.Sync())
		})
	}
	c.Logger = sysLogger
	c.Metrics = metrics.New()

	cat := o.catalog
	if cat == nil {
		loaded, err := catalog.Load(cfg.Ads.DataDir)
		if err != nil {
			return nil, fmt.Errorf("load ad catalog: %w", err)
		}
		cat = loaded
	}
	log.Printf("[INFO] Catalog loaded: %d items, %d tags", len(cat.Items()), len(cat.Vocabulary()))

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)
	c.closers = append(c.closers, func(context.Context) error { return pubSub.Close() })

	// 3. Infrastructure
	pool := worker.NewPool(worker.Config{Size: cfg.Worker.PoolSize, QueueSize: cfg.Worker.QueueSize}, sysLogger, c.Metrics)
	c.Pool = pool

	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			c.closers = append(c.closers, func(context.Context) error { natsPub.Close(); return nil })
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.closers = append(c.closers, func(context.Context) error { natsSub.Close(); return nil })
		}
	}

	var rdb *redis.Client
	snapshots := contract.SnapshotRepository(nil)
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v. Using in-memory session snapshots", err)
			rdb.Close()
			rdb = nil
		} else {
			snapshots = redisRepo.NewSnapshotRepository(rdb, cfg.Session.TTL)
			c.closers = append(c.closers, func(context.Context) error { return rdb.Close() })
		}
	}
	if snapshots == nil {
		snapshots = memory.NewSnapshotRepository(cfg.Session.TTL)
	}

	var interestRepo contract.InterestLogRepository
	var notificationRepo contract.NotificationRepository
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.Migrate(db, &model.InterestLog{}, &model.Notification{}); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		interestRepo = implementation.NewInterestLogRepository(db)
		notificationRepo = implementation.NewNotificationRepository(db)
		if sqlDB, err := db.DB(); err == nil {
			c.closers = append(c.closers, func(context.Context) error { return sqlDB.Close() })
		}
	} else {
		log.Printf("[INFO] DB_CONNECTION_STRING not set, interest log and notifications kept in memory")
		interestRepo = memory.NewInterestLogRepository(0)
		notificationRepo = memory.NewNotificationRepository(0)
	}

	// 4. Sessions
	reg := registry.New(newHandleFactory(o.llmFactory, cfg), snapshots, cfg.Session.TTL, sysLogger)
	c.Registry = reg

	// 5. Services
	publisherService := service.NewPublisherService(cfg.Keys.InterestTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Keys.InterestTopic, interestRepo, sysLogger)

	enricher := enrichment.New(
		cat,
		service.NewInterestRecorder(publisherService, sysLogger),
		sysLogger,
		llmLogger,
		enrichment.Config{LLMTimeout: cfg.Stream.EnrichmentTimeout},
	)
	orchestrator := stream.NewOrchestrator(pool, enricher, sysLogger, c.Metrics, stream.Config{
		EnrichmentDeadline: cfg.Stream.EnrichmentDeadline,
	})
	progressRelay := relay.New(cfg.Stream.RelayPollInterval, pool, sysLogger, c.Metrics)

	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}

	memoryService := service.NewMemoryService(reg, entity.SessionSnapshot{
		LLMProvider:         cfg.Ai.LLMProvider,
		APIKey:              cfg.Keys.LLM,
		BaseURL:             cfg.Ai.LLMBaseURL,
		Model:               cfg.Ai.LLMModel,
		EmbeddingProvider:   cfg.Ai.EmbeddingProvider,
		EmbeddingModel:      cfg.Ai.EmbeddingModel,
		DataStoragePath:     cfg.Memory.DataStoragePath,
		FileStorageBasePath: cfg.Memory.FileStorageBasePath,
	}, interestRepo, sysLogger)
	chatService := service.NewChatService(orchestrator, sysLogger)
	ingestService := service.NewIngestService(progressRelay, pool, eventPublisher, cfg.Stream.DefaultConverter, sysLogger)

	// 6. Notifications
	wsLogger := sysLogger
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)
	c.NotificationService = service.NewNotificationService(natsSub, notificationRepo, c.WebSocketHub, wsLogger)
	c.NotificationHandler = handler.NewNotificationHandler(c.WebSocketHub, c.NotificationService, reg, wsLogger)

	// 7. Controllers
	c.MemoryController = controller.NewMemoryController(memoryService, reg)
	c.ChatController = controller.NewChatController(chatService, reg, sysLogger)
	c.IngestController = controller.NewIngestController(ingestService, reg, sysLogger)

	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	return c, nil
}

func newHandleFactory(newLLM LLMFactory, cfg *config.Config) registry.HandleFactory {
	return func(_ context.Context, snap *entity.SessionSnapshot) (memcontext.Handle, error) {
		client, err := newLLM(factory.ProviderConfig{
			Provider: snap.LLMProvider,
			APIKey:   snap.APIKey,
			BaseURL:  snap.BaseURL,
			Model:    snap.Model,
		})
		if err != nil {
			return nil, err
		}
		return memcontext.NewLocal(memcontext.Options{
			UserID:              snap.UserID,
			AssistantID:         snap.AssistantID,
			DataStoragePath:     snap.DataStoragePath,
			FileStorageBasePath: snap.FileStorageBasePath,
			ShortTermCapacity:   cfg.Memory.ShortTermCapacity,
			Client:              client,
			Model:               snap.Model,
		})
	}
}

// Close drains the worker pool and releases every connection, newest first.
func (c *Container) Close(ctx context.Context) error {
	errs := []error{c.Pool.Shutdown(ctx)}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}
	return errors.Join(errs...)
}

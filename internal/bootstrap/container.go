package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-docchat/internal/config"
	"ai-docchat/internal/controller"
	"ai-docchat/internal/handler"
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/internal/pkg/serverutils"
	"ai-docchat/internal/repository/cache"
	"ai-docchat/internal/repository/memory"
	"ai-docchat/internal/service"
	"ai-docchat/internal/websocket"
	"ai-docchat/pkg/docservice/cached"
	"ai-docchat/pkg/docservice/rest"
	"ai-docchat/pkg/events"

	pktNats "ai-docchat/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController

	// WebSockets
	ChatSocketHandler *handler.ChatSocketHandler
	WebSocketHub      *websocket.Hub

	Logger        logger.ILogger
	SessionDriver service.ISessionDriver

	bus   *events.SessionBus
	audit *pktNats.Publisher
	rdb   *redis.Client
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	// 2. Document service, cached locally and optionally in Redis
	restClient := rest.NewClient(cfg.DocService.BaseURL, cfg.DocService.AuthToken, cfg.DocService.RequestTimeout)

	layers := []cached.DocumentCache{memory.NewDocumentCache(cfg.Cache.ChunkTTL)}
	rdb := connectRedis(cfg.App.RedisURL)
	if rdb != nil {
		layers = append(layers, cache.NewRedisDocumentCache(rdb, cfg.Cache.ChunkTTL, sysLogger))
	}
	provider := cached.NewProvider(restClient, cached.Chain(layers...), sysLogger)

	// 3. Event Bus
	bus := events.NewSessionBus(watermill.NewStdLogger(false, false))

	// NATS audit stream is optional
	var auditor service.Auditor
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v (audit disabled)", err)
		} else {
			natsPub = pub
			auditor = pub
		}
	}

	// 4. Services
	sessionRepo := memory.NewSessionRepository(cfg.Cache.SessionIdleTTL)
	sessionDriver := service.NewSessionDriver(provider, sessionRepo, bus, auditor, sysLogger, service.SessionDriverConfig{
		AskTimeout: cfg.DocService.AskTimeout,
	})
	documentService := service.NewDocumentService(provider, sysLogger)

	// WebSocket Hub: a view with no connections left is torn down
	wsHub := websocket.NewHub(sysLogger, func(viewID string) {
		if err := sessionDriver.Close(context.Background(), viewID); err != nil {
			sysLogger.Debug("Hub", "Idle view already closed", map[string]interface{}{"view_id": viewID})
		}
	})
	go wsHub.Run()

	viewTokens := serverutils.NewViewTokens(cfg.App.ViewTokenSecret, cfg.App.ViewTokenTTL)

	// 5. Controllers
	return &Container{
		ChatController:     controller.NewChatController(sessionDriver, viewTokens),
		DocumentController: controller.NewDocumentController(documentService),
		ChatSocketHandler:  handler.NewChatSocketHandler(sessionDriver, bus, wsHub, viewTokens, sysLogger),
		WebSocketHub:       wsHub,
		Logger:             sysLogger,
		SessionDriver:      sessionDriver,

		bus:   bus,
		audit: natsPub,
		rdb:   rdb,
	}
}

func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v (shared cache disabled)", err)
		rdb.Close()
		return nil
	}
	return rdb
}

// Close tears down open sessions and releases connections.
func (c *Container) Close() {
	c.WebSocketHub.Stop()
	c.SessionDriver.Shutdown()

	if err := c.bus.Close(); err != nil {
		c.Logger.Warn("Container", "Failed to close session bus", map[string]interface{}{"error": err.Error()})
	}
	if c.audit != nil {
		c.audit.Close()
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	c.Logger.Sync()
}

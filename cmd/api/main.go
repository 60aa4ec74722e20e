package main

import (
	"context"
	"net/http"
	"time"

	"azure-communication/config"
	"azure-communication/internal/chatsync"
	"azure-communication/internal/domain"
	"azure-communication/internal/events"
	"azure-communication/internal/handler"
	"azure-communication/internal/redis"
	"azure-communication/internal/server"
	"azure-communication/internal/storage"
	"azure-communication/internal/transport/azure"
	"azure-communication/internal/transport/memory"
	"azure-communication/internal/websocket"
	"azure-communication/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer func() { _ = l.Sync() }()

	if err := cfg.Validate(); err != nil {
		l.Logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, local, err := newChatClient(cfg, l)
	if err != nil {
		l.Logger.Fatal("failed to create chat client", zap.Error(err))
	}

	var (
		rdb  *goredis.Client
		sink chatsync.SnapshotSink
	)
	if cfg.RedisEnabled {
		rdb = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := redis.Ping(ctx, rdb, 3*time.Second); err != nil {
			l.Logger.Fatal("redis unavailable", zap.Error(err))
		}
		sink = redis.NewCacheStore(rdb, redis.CacheConfig{SnapshotTTL: cfg.SnapshotTTL})
	}

	svc := chatsync.NewService(client, chatsync.Options{
		RefreshConcurrency: cfg.RefreshConcurrency,
		Sink:               sink,
		Logger:             l,
	})
	defer svc.Close()

	// With Redis every notification goes through the channel so that all
	// instances refresh; without it the local service is called directly.
	var notifier events.Notifier = events.NewDirectNotifier(svc)
	if rdb != nil {
		notifier = events.NewPublishingNotifier(redis.NewPublisher(rdb), cfg.NotifyChannel, l)
		bridge := events.NewBridge(redis.NewSubscriber(rdb), svc, l)
		go func() {
			if err := bridge.Run(ctx, []string{cfg.NotifyChannel}); err != nil {
				l.Errorf("notification bridge stopped: %v", err)
			}
		}()
	}

	if local != nil {
		local.OnMessageReceived(func(event domain.MessageReceivedEvent) {
			if err := notifier.Notify(context.Background(), event); err != nil {
				l.Warnf("local notification: %v", err)
			}
		})
	}

	if cfg.PollInterval > 0 {
		poller := events.NewPoller(svc, cfg.PollInterval, l)
		poller.Start()
		defer poller.Stop()
	}

	var exporter handler.Exporter
	if cfg.ExportEnabled() {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			l.Logger.Fatal("failed to create s3 client", zap.Error(err))
		}
		exporter = s3Client
	}

	if err := svc.RefreshThreads(ctx); err != nil {
		l.Warnf("initial thread list: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	var ping func(ctx context.Context) error
	if rdb != nil {
		ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Threads: handler.NewThreadHandler(svc, notifier, handler.ThreadHandlerOptions{
			NotifyOnSend: local == nil,
			Exporter:     exporter,
			Logger:       l,
		}),
		Events:    handler.NewEventHandler(notifier, l),
		Health:    handler.NewHealthHandler(svc, hub.GetClientCount, ping),
		WebSocket: websocket.NewHandler(svc, hub, cfg.CORSOrigins, l),
	})
	if err := srv.Start(); err != nil {
		l.Errorf("server exited: %v", err)
	}
}

// newChatClient returns the ACS client, or an in-memory backend seeded with
// one thread when no endpoint is configured. local is non-nil only then.
func newChatClient(cfg *config.Config, l *logger.Logger) (domain.ChatClient, *memory.Client, error) {
	if cfg.LocalMode() {
		l.Infof("ACS_ENDPOINT not set, running with the in-memory chat backend")
		local := memory.NewClient(cfg.ACSPageSize)
		local.CreateThread("general")
		return local, local, nil
	}

	var refresher azure.TokenRefresher
	if cfg.ACSTokenFile != "" {
		refresher = azure.FileTokenRefresher(cfg.ACSTokenFile)
	}
	credential, err := azure.NewCommunicationTokenCredential(cfg.ACSAccessToken, refresher)
	if err != nil {
		return nil, nil, err
	}
	client, err := azure.NewClient(cfg.ACSEndpoint, credential, azure.Options{
		APIVersion: cfg.ACSAPIVersion,
		PageSize:   cfg.ACSPageSize,
		HTTPClient: &http.Client{Timeout: cfg.ACSHTTPTimeout},
		Logger:     l,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, nil, nil
}

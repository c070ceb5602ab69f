package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dropmail/internal/config"
	"dropmail/internal/health"
	"dropmail/internal/logger"
	"dropmail/internal/mail"
	"dropmail/internal/monitoring"
	"dropmail/internal/service"
	"dropmail/internal/smtp"
	"dropmail/internal/storage"
	"dropmail/internal/storage/hybrid"
	"dropmail/internal/storage/memory"
	"dropmail/internal/storage/postgres"
	"dropmail/internal/storage/redis"
	httptransport "dropmail/internal/transport/http"
	"dropmail/internal/websocket"
)

// main 启动同时包含 SMTP 接收端与 HTTP API 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting dropmail server",
		zap.String("version", "0.4.1"),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	var cache *redis.Cache

	// 根据配置选择存储类型
	if cfg.Database.DSN != "" {
		store, cache, err = initializeDatabaseStorage(cfg, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		// 使用内存存储（开发环境）
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	var healthChecker *health.Checker
	if cache != nil {
		healthChecker = health.NewChecker(store, cache)
	} else {
		healthChecker = health.NewChecker(store, nil)
	}

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0)) // 512MB
	alertManager.AddRule(monitoring.GoroutineLeakRule(1000))
	alertManager.AddRule(monitoring.StorageHealthRule(store))

	// 初始化服务层
	mailboxService := service.NewMailboxService(store, cfg.SMTP.Domain, cfg.Mailbox.DefaultTTL, metrics)
	messageService := service.NewMessageService(store)
	deliveryService := service.NewDeliveryService(store, mail.NewMIMEParser(), cfg.SMTP.Domain, log, metrics)
	retentionService := service.NewRetentionService(store, cfg.Retention.MailboxMaxAge, cfg.Retention.MessageMaxAge, log, metrics)

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 新邮件通知：单实例直接推给 Hub；配置 Redis 时经由频道桥接，
	// 多实例部署下任一实例收件都能推送到全部在线客户端。
	var bridge *websocket.Bridge
	if cache != nil {
		deliveryService.SetNotifier(service.NewRedisNotifier(cache, log))
		bridge = websocket.NewBridge(wsHub, cache, log)
	} else {
		deliveryService.SetNotifier(wsHub)
	}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		MessageService: messageService,
		WebSocketHub:   wsHub,
		Health:         healthChecker,
		Metrics:        metrics,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器
	smtpServer, err := smtp.NewServer(smtp.ServerConfig{
		Addr:        cfg.SMTP.BindAddr,
		Domain:      cfg.SMTP.Domain,
		MaxSize:     cfg.SMTP.MaxSize,
		IdleTimeout: cfg.SMTP.IdleTimeout,
	}, deliveryService, log, metrics)
	if err != nil {
		panic(fmt.Sprintf("failed to create SMTP server: %v", err))
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时清理过期数据 goroutine
	group.Go(func() error {
		log.Info("starting retention sweeper",
			zap.Duration("interval", cfg.Retention.SweepInterval),
			zap.Duration("mailbox_max_age", cfg.Retention.MailboxMaxAge),
			zap.Duration("message_max_age", cfg.Retention.MessageMaxAge),
		)
		return retentionService.Run(groupCtx, cfg.Retention.SweepInterval)
	})

	// Redis 通知桥接 goroutine
	if bridge != nil {
		group.Go(func() error {
			log.Info("starting redis notification bridge")
			return bridge.Run(groupCtx)
		})
	}

	// 告警监控 goroutine
	group.Go(func() error {
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关闭 HTTP 服务器
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 关闭 SMTP 服务器，等待活跃会话收尾
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("SMTP server shutdown warning", zap.Error(err))
		}

		// 最后关闭存储连接
		if err := store.Close(); err != nil {
			log.Warn("storage close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeDatabaseStorage 初始化数据库存储
func initializeDatabaseStorage(cfg *config.Config, log *zap.Logger) (storage.Store, *redis.Cache, error) {
	log.Info("initializing database storage",
		zap.String("database_type", cfg.Database.Type),
		zap.String("redis_address", cfg.Redis.Address),
	)

	// 配置了 Redis 时使用混合存储（SQL + Redis 缓存）
	if cfg.Redis.Address != "" {
		store, err := hybrid.NewStoreWithType(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create hybrid store: %w", err)
		}
		return store, store.Cache(), nil
	}

	// 纯数据库存储
	var store storage.Store
	var err error
	switch cfg.Database.Type {
	case "mysql":
		store, err = postgres.NewMySQLStore(cfg.Database.DSN)
	default:
		store, err = postgres.NewStore(cfg.Database.DSN)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database store: %w", err)
	}
	return store, nil, nil
}

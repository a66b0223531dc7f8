package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/IDiwizerI/seller-bot/internal/adapter/events"
	"github.com/IDiwizerI/seller-bot/internal/adapter/handler"
	"github.com/IDiwizerI/seller-bot/internal/adapter/notifier"
	"github.com/IDiwizerI/seller-bot/internal/adapter/storage"
	"github.com/IDiwizerI/seller-bot/internal/config"
	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/core/service"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

const eventProducer = "seller-bot"

func main() {
	var configPath, envFile string
	pflag.StringVar(&configPath, "config", "", "path to a YAML config file")
	pflag.StringVar(&envFile, "env-file", "", "path to a .env file (default .env when present)")
	pflag.Parse()

	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis")

	audit, err := storage.OpenSQLiteAuditLog(cfg.AuditDBPath, 4, log)
	if err != nil {
		return err
	}
	defer audit.Close()

	// Initialize adapters
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.LockTTL, cfg.SessionTTL)

	var publisher port.EventPublisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, eventProducer, 1024, log)
		kp.Start()
		defer func() {
			kp.Close()
			kp.WaitClosed()
			log.Info("event publisher flushed")
		}()
		publisher = kp
		log.Info("publishing events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var (
		bot      *tgbotapi.BotAPI
		n        port.Notifier
		answerer handler.CallbackAnswerer
	)
	if cfg.Notifier == config.NotifierTelegram {
		bot, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return fmt.Errorf("connect bot api: %w", err)
		}
		n = notifier.NewTelegramNotifier(bot, cfg.ChannelID)
		answerer = bot
		log.Info("authorized on bot api", "username", bot.Self.UserName)
	} else {
		n = notifier.NewLogNotifier(log.With("component", "notifier"))
	}

	// Initialize services
	gate := service.NewEligibilityService(mysqlAdapter)
	svc := handler.Services{
		Gate:        gate,
		Submission:  service.NewSubmissionService(gate, redisAdapter, mysqlAdapter, n, publisher, cfg.SkipWord, log),
		Moderation:  service.NewModerationService(mysqlAdapter, n, redisAdapter, publisher, cfg.BotUsername, log),
		Transaction: service.NewTransactionService(mysqlAdapter, redisAdapter, n, redisAdapter, audit, publisher, log),
		Catalog:     service.NewCatalogService(mysqlAdapter, cfg.PageSize),
		Admin:       service.NewAdminService(mysqlAdapter, gate, n, audit, log),
	}
	if err := svc.Admin.SeedAdmins(ctx, cfg.AdminIDs); err != nil {
		return fmt.Errorf("seed admins: %w", err)
	}

	// Start dispatcher
	botHandler := handler.NewBotHandler(svc, n, answerer, cfg.SkipWord, log)
	dispatcher := handler.NewDispatcher(botHandler, redisAdapter, cfg.Workers, cfg.QueueSize, log)
	dispatcher.Start(ctx)

	// Initialize gRPC server
	grpcHandler := handler.NewGRPCHandler()
	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = grpc.NewServer()
		grpcHandler.Register(grpcServer)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC server error", "err", err)
			}
		}()
	}

	// Initialize HTTP server
	httpCfg := handler.HTTPConfig{AdminToken: cfg.AdminAPIToken}
	if cfg.UpdateMode == config.UpdateModeWebhook {
		httpCfg.WebhookPath = cfg.WebhookPath
		httpCfg.WebhookSecret = cfg.WebhookSecret
	}
	checks := map[string]handler.HealthCheck{
		"mysql": db.PingContext,
		"redis": redisAdapter.Ping,
	}
	httpHandler := handler.NewHTTPHandler(httpCfg, dispatcher, svc.Admin, checks, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	// Start update intake
	if bot != nil {
		switch cfg.UpdateMode {
		case config.UpdateModeWebhook:
			if err := setWebhook(bot, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
				return err
			}
			log.Info("webhook registered", "url", cfg.WebhookURL)
		default:
			if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
				log.Warn("delete webhook failed", "err", err)
			}
			go pollUpdates(ctx, bot, dispatcher, log)
			log.Info("polling for updates")
		}
	}

	grpcHandler.SetServing(true)
	<-ctx.Done()

	// Graceful shutdown
	log.Info("shutting down...")
	grpcHandler.Shutdown()
	if bot != nil && cfg.UpdateMode == config.UpdateModePolling {
		bot.StopReceivingUpdates()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", "err", err)
	}
	log.Info("HTTP server stopped")

	dispatcher.Close()

	if grpcServer != nil {
		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
	}
	return nil
}

// setWebhook registers url with a secret token. The library's WebhookConfig
// has no secret field, so the call is made with raw parameters.
func setWebhook(bot *tgbotapi.BotAPI, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

func pollUpdates(ctx context.Context, bot *tgbotapi.BotAPI, d *handler.Dispatcher, log *slog.Logger) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if err := d.Submit(ctx, upd); err != nil && !errors.Is(err, domain.ErrDuplicateUpdate) {
				log.Warn("update dropped", "update_id", upd.UpdateID, "err", err)
			}
		}
	}
}

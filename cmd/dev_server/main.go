package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"messenger_sync/internal/devserver/repository"
	"messenger_sync/internal/devserver/router"
	"messenger_sync/pkg/config"
	"messenger_sync/pkg/database"
	"messenger_sync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("dev_server", pflag.ContinueOnError)
	configPath := flags.String("config", config.EnvConfig.DevServerYAMLPath, "directory holding dev_server.yaml")
	port := flags.String("port", "", "listen port, overrides the config")
	debug := flags.Bool("debug", false, "enable debug log")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("parse flags: %v", err)
	}

	logger.Log = logger.Initialize(config.EnvConfig.DevServer, config.EnvConfig.DevServerLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.DevServer](config.EnvConfig.DevServer, *configPath, config.DevServerDefaults)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	if *port != "" {
		cfg.Port = *port
	}
	logger.Log.SetDebugMode(cfg.Debug || *debug)

	// 1. 建立 broker
	ctx := context.Background()
	var broker repository.Broker
	switch cfg.Broker {
	case config.BrokerRedis:
		redisClient, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Log.Fatal("connect redis failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		broker = repository.NewRedisBroker(redisClient, cfg.QueueSize)
	default:
		broker = repository.NewMemoryBroker(cfg.QueueSize)
	}

	// 2. access log
	var out io.Writer = os.Stdout
	if dir := config.EnvConfig.DevServerLogPath; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create log directory: %v", err)
		}
		file, err := os.OpenFile(filepath.Join(dir, "access.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer file.Close()
		out = file
	}

	srv := router.NewServer(cfg, broker, fiber_log.New(fiber_log.Config{
		Output: out, // 将日志输出到文件
		// stream 長連線不要等結束才記錄
		Next: func(c *fiber.Ctx) bool { return c.Path() == "/api/v1/events/stream" },
	}))

	go func() {
		addr := ":" + cfg.Port
		logger.Log.Info(fmt.Sprintf("dev server listening on %s", addr), zap.String("broker", cfg.Broker))
		if err := srv.App.Listen(addr); err != nil {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down dev server")
	if err := srv.Shutdown(10 * time.Second); err != nil {
		logger.Log.Error("shutdown failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/chat"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/config"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/db"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/handlers"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/middleware"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/realtime"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))
	lg := slog.Default().With("env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal(err)
	}

	svc := chat.NewService(st, cfg.PlatformOperatorID, lg)
	resolver := identity.NewJWTResolver(cfg.JWTSecret)
	hub := realtime.NewHub(lg)

	var sinks []realtime.MessageSink
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis not reachable: ", err)
		}
		relay := realtime.NewRedisRelay(rdb, lg)
		hub.SetRelay(relay)
		sinks = append(sinks, relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				lg.Error("redis relay stopped", "error", err)
			}
		}()
		lg.Info("redis relay enabled", "addr", cfg.RedisAddr)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := realtime.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		sinks = append(sinks, producer)
		lg.Info("kafka producer enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	gw := realtime.NewGateway(svc, resolver, hub, lg, sinks...)
	chatH := handlers.NewChatHandler(svc, gw, lg)

	app := fiber.New(fiber.Config{
		AppName:      "tenant-chat",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"success": false, "message": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"store": "ok", "connections": hub.ConnectionCount()}
		healthy := true
		if err := st.Ping(c.UserContext()); err != nil {
			status["store"] = err.Error()
			healthy = false
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(c.UserContext()).Err(); err != nil {
				status["redis"] = err.Error()
				healthy = false
			}
		}
		if !healthy {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "data": status})
		}
		return c.JSON(fiber.Map{"success": true, "data": status})
	})

	handlers.Register(app, chatH, resolver, cfg.AuthCookie)

	// WebSocket: no auth gate here, identity is checked per event
	app.Use("/ws", middleware.TokenFromRequest(cfg.AuthCookie), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(gw.Serve))

	go func() {
		<-ctx.Done()
		lg.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			lg.Error("shutdown", "error", err)
		}
	}()

	lg.Info("listening", "port", cfg.AppPort, "store", cfg.StoreDriver)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal(err)
	}
}

func openStore(cfg config.Config) (chat.Store, error) {
	if cfg.StoreDriver == "memory" {
		return store.NewMemoryStore(), nil
	}
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	return store.NewGormStore(gdb), nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppPort            string
	Environment        string
	LogLevel           string
	StoreDriver        string
	DBDSN              string
	JWTSecret          string
	AuthCookie         string
	PlatformOperatorID uint
	AllowedOrigins     string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	KafkaBrokers       []string
	KafkaTopic         string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(get("REDIS_DB", "0"))
	operatorID, err := strconv.ParseUint(get("PLATFORM_OPERATOR_ID", "1"), 10, 32)
	if err != nil || operatorID == 0 {
		panic("invalid env: PLATFORM_OPERATOR_ID")
	}

	cfg := Config{
		AppPort:            get("APP_PORT", "8080"),
		Environment:        get("ENVIRONMENT", "development"),
		LogLevel:           get("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(get("STORE_DRIVER", "postgres")),
		JWTSecret:          must("JWT_SECRET"),
		AuthCookie:         get("AUTH_COOKIE", "access_token"),
		PlatformOperatorID: uint(operatorID),
		AllowedOrigins:     get("ALLOWED_ORIGINS", "http://localhost:3000"),
		RedisAddr:          get("REDIS_ADDR", ""),
		RedisPassword:      get("REDIS_PASSWORD", ""),
		RedisDB:            redisDB,
		KafkaBrokers:       list(get("KAFKA_BROKERS", "")),
		KafkaTopic:         get("KAFKA_TOPIC", "chat-messages"),
	}
	if cfg.StoreDriver == "postgres" {
		cfg.DBDSN = must("DB_DSN")
	}
	return cfg
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func list(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

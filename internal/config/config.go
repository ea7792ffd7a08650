package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL       string
	RedisURL          string
	KafkaBrokers      string
	NatsURL           string
	CatalogURL        string
	CardNetworkURL    string
	MobileMoneyURL    string
	RedirectWalletURL string
	ProviderTimeout   time.Duration
	JaegerEndpoint    string
	Port              string
}

func Load() *Config {
	return &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		NatsURL:           os.Getenv("NATS_URL"),
		CatalogURL:        envOr("CATALOG_URL", "http://localhost:8081"),
		CardNetworkURL:    envOr("CARD_NETWORK_URL", "http://localhost:9091"),
		MobileMoneyURL:    envOr("MOBILE_MONEY_URL", "http://localhost:9092"),
		RedirectWalletURL: envOr("REDIRECT_WALLET_URL", "http://localhost:9093"),
		ProviderTimeout:   envSeconds("PROVIDER_TIMEOUT_SECONDS", 10),
		JaegerEndpoint:    envOr("JAEGER_ENDPOINT", "jaeger:4318"),
		Port:              envOr("PORT", "8082"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}

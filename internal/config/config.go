package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	TaxRate                string
	LoyaltyPointValueCents int64
	LoyaltyEarnPerDollar   int64
	BalanceCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	pointValue, err := strconv.ParseInt(getEnv("LOYALTY_POINT_VALUE_CENTS", "1"), 10, 64)
	if err != nil || pointValue < 1 {
		pointValue = 1
	}
	earnRate, err := strconv.ParseInt(getEnv("LOYALTY_EARN_PER_DOLLAR", "10"), 10, 64)
	if err != nil || earnRate < 0 {
		earnRate = 10
	}
	balanceTTL, err := strconv.Atoi(getEnv("BALANCE_CACHE_TTL_SECONDS", "60"))
	if err != nil || balanceTTL < 1 {
		balanceTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		TaxRate:                getEnv("TAX_RATE", "0.15"),
		LoyaltyPointValueCents: pointValue,
		LoyaltyEarnPerDollar:   earnRate,
		BalanceCacheTTLSeconds: balanceTTL,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ManagerPIN:             strings.TrimSpace(os.Getenv("MANAGER_PIN")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	AppEnv       string
	IsStaging    bool
	IsProduction bool
	Port         string

	DBDriver string
	DBDSN    string
	RedisURL string

	// completion provider: openai | anthropic | openai-compatible | gemini | local
	LLMProvider        string
	LLMAPIKey          string
	LLMModel           string
	LLMBaseURL         string
	LLMTemperature     float64
	LLMMaxOutputTokens int
	LLMTimeoutSeconds  int

	PromptsFile    string
	HistoryAllowed bool

	MaxClients        int
	DefaultDailyLimit int
	MuhbirDailyLimit  int
	TimeZone          string
	Location          *time.Location

	JWTSecret       string
	AdminPathPrefix string
	CORSOrigins     []string

	RateLimitWindowSeconds int
	RateLimitCapacity      int
	UserConcurrencyLimit   int
	DuplicateWindowSeconds int
	CatalogCacheTTLSeconds int
	CatalogCacheMaxItems   int
)

// loadAppEnv loads .env unless running in production, where the host
// environment is authoritative.
func loadAppEnv() error {
	AppEnv = os.Getenv("APP_ENV")
	if AppEnv == "production" {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads the process configuration. It is called once from main; tests
// never call it and rely on explicit constructor arguments instead.
func Load() error {
	if err := loadAppEnv(); err != nil {
		return err
	}

	AppEnv = os.Getenv("APP_ENV")
	if AppEnv == "" {
		AppEnv = "staging"
	}
	if !slices.Contains([]string{"staging", "production"}, AppEnv) {
		return errors.New("environment variable APP_ENV must be 'staging' or 'production'")
	}
	IsStaging = AppEnv == "staging"
	IsProduction = AppEnv == "production"

	Port = orDefault(os.Getenv("PORT"), "8000")

	DBDriver = strings.ToLower(orDefault(os.Getenv("DB_DRIVER"), "sqlite"))
	DBDSN = orDefault(os.Getenv("DB_DSN"), "app.db")
	RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	LLMProvider = strings.ToLower(orDefault(os.Getenv("LLM_PROVIDER"), "openai"))
	LLMAPIKey = os.Getenv("LLM_API_KEY")
	LLMModel = os.Getenv("LLM_MODEL")
	LLMBaseURL = os.Getenv("LLM_BASE_URL")
	LLMTemperature = atofOr(os.Getenv("LLM_TEMPERATURE"), 0.4)
	LLMMaxOutputTokens = atoiOr(os.Getenv("LLM_MAX_OUTPUT_TOKENS"), 1024)
	LLMTimeoutSeconds = atoiOr(os.Getenv("LLM_TIMEOUT_SECONDS"), 60)

	PromptsFile = os.Getenv("PROMPTS_FILE")
	HistoryAllowed = os.Getenv("HISTORY_ALLOWED") == "1"

	MaxClients = atoiOr(os.Getenv("MAX_CLIENTS"), 0)
	DefaultDailyLimit = atoiOr(os.Getenv("DEFAULT_DAILY_LIMIT"), 20)
	MuhbirDailyLimit = atoiOr(os.Getenv("MUHBIR_DAILY_LIMIT"), 100)

	TimeZone = orDefault(os.Getenv("TIME_ZONE"), "UTC")
	loc, err := time.LoadLocation(TimeZone)
	if err != nil {
		return fmt.Errorf("invalid TIME_ZONE %q: %w", TimeZone, err)
	}
	Location = loc

	JWTSecret = os.Getenv("JWT_SECRET_KEY")
	if IsProduction && JWTSecret == "" {
		return errors.New("JWT_SECRET_KEY must be set in production")
	}
	AdminPathPrefix = orDefault(os.Getenv("ADMIN_PATH_PREFIX"), "/admin")
	CORSOrigins = splitList(orDefault(os.Getenv("CORS_ORIGINS"), "http://localhost:3000,http://127.0.0.1:3000"))

	RateLimitWindowSeconds = atoiOr(os.Getenv("RATE_LIMIT_WINDOW_SECONDS"), 10)
	RateLimitCapacity = atoiOr(os.Getenv("RATE_LIMIT_CAPACITY"), 5)
	UserConcurrencyLimit = atoiOr(os.Getenv("USER_CONCURRENCY_LIMIT"), 2)
	DuplicateWindowSeconds = atoiOr(os.Getenv("DUPLICATE_WINDOW_SECONDS"), 10)
	CatalogCacheTTLSeconds = atoiOr(os.Getenv("CATALOG_CACHE_TTL_SECONDS"), 300)
	CatalogCacheMaxItems = atoiOr(os.Getenv("CATALOG_CACHE_MAX_ITEMS"), 500)

	return nil
}

// LogSummary prints the values that matter when debugging a deployment.
func LogSummary(log *zap.Logger) {
	log.Info("config loaded",
		zap.String("env", AppEnv),
		zap.String("db_driver", DBDriver),
		zap.Bool("redis", RedisURL != ""),
		zap.String("llm_provider", LLMProvider),
		zap.String("llm_model", LLMModel),
		zap.Bool("llm_key_present", LLMAPIKey != ""),
		zap.Bool("history_allowed", HistoryAllowed),
		zap.Int("max_clients", MaxClients),
		zap.String("time_zone", TimeZone),
	)
	log.Info("config tunables",
		zap.Int("rate_window_s", RateLimitWindowSeconds),
		zap.Int("rate_capacity", RateLimitCapacity),
		zap.Int("user_concurrency", UserConcurrencyLimit),
		zap.Int("dup_window_s", DuplicateWindowSeconds),
		zap.Int("catalog_ttl_s", CatalogCacheTTLSeconds),
	)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func atofOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

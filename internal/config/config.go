package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultOnlySqV2URL = "https://api.onlysq.ru/ai/v2"

// Config aggregates runtime configuration for the API server and the bot.
type Config struct {
	BotToken   string
	WebAppURL  string
	ListenAddr string
	LogLevel   string

	DatabaseDriver string
	MySQLDSN       string
	SQLitePath     string

	OpenRouterAPIKey   string
	OpenRouterModel    string
	OpenRouterSiteURL  string
	OpenRouterAppTitle string
	OnlySqAPIKey       string
	OnlySqAPIStyle     string
	OnlySqV2URL        string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string

	RequestTimeout     time.Duration
	FreeRequestLimit   int
	FreeWindow         time.Duration
	InitDataMaxAge     time.Duration
	SolveRatePerMinute int

	AdminUsername string
	AdminPassword string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		WebAppURL:          getEnv("WEBAPP_URL", ""),
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseDriver:     strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		SQLitePath:         getEnv("SQLITE_PATH", "data.db"),
		OpenRouterModel:    getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		OpenRouterSiteURL:  getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppTitle: getEnv("OPENROUTER_APP_TITLE", ""),
		OnlySqAPIStyle:     strings.ToLower(getEnv("ONLYSQ_API_STYLE", "v1")),
		OnlySqV2URL:        getEnv("ONLYSQ_V2_URL", defaultOnlySqV2URL),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		RequestTimeout:     time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		FreeRequestLimit:   getInt("FREE_REQUEST_LIMIT", 10),
		FreeWindow:         time.Hour * 24 * time.Duration(getInt("FREE_WINDOW_DAYS", 7)),
		InitDataMaxAge:     time.Second * time.Duration(getInt("INITDATA_MAX_AGE_SECONDS", 86400)),
		SolveRatePerMinute: getInt("SOLVE_RATE_PER_MINUTE", 6),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:    os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:           getEnv("S3_PREFIX", "problems"),
	}

	cfg.BotToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.OpenRouterAPIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	cfg.OnlySqAPIKey = strings.TrimSpace(os.Getenv("ONLYSQ_API_KEY"))
	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.DatabaseDriver == "mysql" && os.Getenv("MYSQL_DSN") == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	if cfg.OnlySqAPIStyle != "v1" && cfg.OnlySqAPIStyle != "v2" {
		return Config{}, fmt.Errorf("ONLYSQ_API_STYLE must be v1 or v2, got %q", cfg.OnlySqAPIStyle)
	}

	return cfg, nil
}

// S3Configured reports whether the optional problem-photo archive is enabled.
func (c Config) S3Configured() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first .env file it finds. Running without one is fine:
// container deployments pass everything through the environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

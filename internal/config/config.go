package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://phoneshop.db"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"shop-events"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"phoneshop-notifier"`

	// API Configuration
	APIPort     string   `env:"API_PORT" envDefault:"8080"`
	APIHost     string   `env:"API_HOST" envDefault:"0.0.0.0"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// JWT
	JWTSecret string `env:"JWT_SECRET"`

	// Spreadsheet
	SheetsBackend         string        `env:"SHEETS_BACKEND" envDefault:"google"`
	SpreadsheetID         string        `env:"SPREADSHEET_ID"`
	GoogleCredentialsFile string        `env:"GOOGLE_CREDENTIALS_FILE"`
	WorkbookPath          string        `env:"WORKBOOK_PATH" envDefault:"shop.xlsx"`
	SheetsCacheTTL        time.Duration `env:"SHEETS_CACHE_TTL" envDefault:"30s"`
	SheetsMinInterval     time.Duration `env:"SHEETS_MIN_INTERVAL" envDefault:"1s"`

	// Telegram
	TelegramToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChat     string `env:"TELEGRAM_CHAT"`
	TelegramChatID   int64
	TelegramThreadID int

	// Shop
	ShopName string `env:"SHOP_NAME" envDefault:"Phone Shop"`
	Timezone string `env:"TIMEZONE" envDefault:"Asia/Ho_Chi_Minh"`

	// Environment
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	chatID, threadID, err := ParseChatTarget(cfg.TelegramChat)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT: %w", err)
	}
	cfg.TelegramChatID = chatID
	cfg.TelegramThreadID = threadID

	switch cfg.SheetsBackend {
	case "google":
		if cfg.SpreadsheetID == "" {
			return nil, fmt.Errorf("SPREADSHEET_ID is required for the google sheets backend")
		}
	case "xlsx", "memory":
	default:
		return nil, fmt.Errorf("unknown SHEETS_BACKEND %q", cfg.SheetsBackend)
	}

	return cfg, nil
}

// Location returns the shop timezone, falling back to UTC+7.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone(c.Timezone, 7*60*60)
}

// ParseChatTarget parses "-1001234567890" or "-1001234567890/2" (chat/topic).
func ParseChatTarget(raw string) (int64, int, error) {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "#"); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}
	if raw == "" {
		return 0, 0, nil
	}

	parts := strings.Split(raw, "/")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("invalid chat target %q, expected -1001234567890 or -1001234567890/2", raw)
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat id: %w", err)
	}

	threadID := 0
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		tid, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid topic id: %w", err)
		}
		if tid < 0 {
			tid = -tid
		}
		threadID = tid
	}

	return chatID, threadID, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	UpdateModePolling = "polling"
	UpdateModeWebhook = "webhook"

	NotifierTelegram = "telegram"
	NotifierLog      = "log"
)

type Config struct {
	BotToken    string  `yaml:"bot_token" validate:"required_if=Notifier telegram"`
	BotUsername string  `yaml:"bot_username" validate:"required"`
	ChannelID   int64   `yaml:"channel_id" validate:"required_if=Notifier telegram"`
	AdminIDs    []int64 `yaml:"admin_ids"`

	MySQLDSN     string   `yaml:"mysql_dsn" validate:"required"`
	RedisAddr    string   `yaml:"redis_addr" validate:"required,hostname_port"`
	KafkaBrokers []string `yaml:"kafka_brokers" validate:"dive,hostname_port"`
	KafkaTopic   string   `yaml:"kafka_topic" validate:"required_with=KafkaBrokers"`
	AuditDBPath  string   `yaml:"audit_db_path" validate:"required"`

	HTTPAddr string `yaml:"http_addr" validate:"required"`
	GRPCAddr string `yaml:"grpc_addr"`

	UpdateMode    string `yaml:"update_mode" validate:"oneof=polling webhook"`
	WebhookURL    string `yaml:"webhook_url" validate:"required_if=UpdateMode webhook,omitempty,url"`
	WebhookPath   string `yaml:"webhook_path" validate:"required,startswith=/"`
	WebhookSecret string `yaml:"webhook_secret"`
	AdminAPIToken string `yaml:"admin_api_token"`
	Workers       int    `yaml:"workers" validate:"min=1,max=256"`
	QueueSize     int    `yaml:"queue_size" validate:"min=1"`

	PageSize   int           `yaml:"page_size" validate:"min=1,max=50"`
	SessionTTL time.Duration `yaml:"session_ttl" validate:"min=1m"`
	LockTTL    time.Duration `yaml:"lock_ttl" validate:"min=1s"`
	SkipWord   string        `yaml:"skip_word" validate:"required"`
	Notifier   string        `yaml:"notifier" validate:"oneof=telegram log"`
	LogLevel   string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

func Default() *Config {
	return &Config{
		BotUsername: "market_bot",
		MySQLDSN:    "root:root@tcp(localhost:3306)/sellerbot?parseTime=true",
		RedisAddr:   "localhost:6379",
		KafkaTopic:  "marketplace.events",
		AuditDBPath: "audit.db",
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		UpdateMode:  UpdateModePolling,
		WebhookPath: "/telegram/webhook",
		Workers:     8,
		QueueSize:   256,
		PageSize:    5,
		SessionTTL:  24 * time.Hour,
		LockTTL:     10 * time.Second,
		SkipWord:    "skip",
		Notifier:    NotifierTelegram,
		LogLevel:    "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if any), then environment variables. envFiles are loaded into the
// environment first; by default that is ".env" when present.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setString(&c.BotToken, "BOT_TOKEN")
	setString(&c.BotUsername, "BOT_USERNAME")
	errs = append(errs, setInt64(&c.ChannelID, "CHANNEL_ID"))
	errs = append(errs, setIDs(&c.AdminIDs, "ADMIN_IDS"))

	setString(&c.MySQLDSN, "MYSQL_DSN")
	setString(&c.RedisAddr, "REDIS_ADDR")
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.KafkaBrokers = splitCSV(v)
	}
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.AuditDBPath, "AUDIT_DB_PATH")

	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.GRPCAddr, "GRPC_ADDR")

	setString(&c.UpdateMode, "UPDATE_MODE")
	setString(&c.WebhookURL, "WEBHOOK_URL")
	setString(&c.WebhookPath, "WEBHOOK_PATH")
	setString(&c.WebhookSecret, "WEBHOOK_SECRET")
	setString(&c.AdminAPIToken, "ADMIN_API_TOKEN")
	errs = append(errs, setInt(&c.Workers, "WORKERS"))
	errs = append(errs, setInt(&c.QueueSize, "QUEUE_SIZE"))

	errs = append(errs, setInt(&c.PageSize, "PAGE_SIZE"))
	errs = append(errs, setDuration(&c.SessionTTL, "SESSION_TTL"))
	errs = append(errs, setDuration(&c.LockTTL, "LOCK_TTL"))
	setString(&c.SkipWord, "SKIP_WORD")
	setString(&c.Notifier, "NOTIFIER")
	setString(&c.LogLevel, "LOG_LEVEL")
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setIDs(dst *[]int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parts := splitCSV(v)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		ids = append(ids, id)
	}
	*dst = ids
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

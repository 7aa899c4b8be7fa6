package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Archival queue backends accepted by ARCHIVAL_BACKEND.
const (
	ArchivalBackendRedis  = "redis"
	ArchivalBackendMemory = "memory"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Discord    DiscordConfig
	Cloudinary CloudinaryConfig
	Lifecycle  LifecycleConfig
}

// AppConfig controls the health server.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// StoreConfig selects and configures the ticket record store.
type StoreConfig struct {
	Driver         string
	DSN            string
	SQLitePath     string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	File        string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Development bool
}

// DiscordConfig identifies the guild and the channels the bot works with.
type DiscordConfig struct {
	Token                   string
	GuildID                 string
	SellerCategoryID        string
	BuyerCategoryID         string
	SellerAnnounceChannelID string
	BuyerAnnounceChannelID  string
	AdminAnnounceChannelID  string
	AdminCheckChannelID     string
	AdminRoleID             string
}

// CloudinaryConfig holds object storage credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// LifecycleConfig tunes ticket timing and pacing.
type LifecycleConfig struct {
	ArchiveAfter         time.Duration
	RetentionDays        int
	SweepSchedule        string
	UploadSpacing        time.Duration
	DeleteSpacing        time.Duration
	RepublishSpacing     time.Duration
	HistoryLimit         int
	ArchivalBackend      string
	ArchivalPollInterval time.Duration
	FetchTimeout         time.Duration
	MaxAttachmentBytes   int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	archiveAfter, err := getEnvAsDuration("TICKET_ARCHIVE_AFTER", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	uploadSpacing, err := getEnvAsDuration("MEDIA_UPLOAD_SPACING", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	deleteSpacing, err := getEnvAsDuration("MEDIA_DELETE_SPACING", 300*time.Millisecond)
	if err != nil {
		return nil, err
	}
	republishSpacing, err := getEnvAsDuration("MEDIA_REPUBLISH_SPACING", 300*time.Millisecond)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvAsDuration("ARCHIVAL_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := getEnvAsDuration("MEDIA_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	redisDial, err := getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	if driver != StoreDriverPostgres && driver != StoreDriverSQLite {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", driver)
	}
	backend := strings.ToLower(getEnv("ARCHIVAL_BACKEND", ArchivalBackendRedis))
	if backend != ArchivalBackendRedis && backend != ArchivalBackendMemory {
		return nil, fmt.Errorf("invalid ARCHIVAL_BACKEND %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "order-ticket-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("PORT", "3000"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Store: StoreConfig{
			Driver:         driver,
			DSN:            os.Getenv("POSTGRES_DSN"),
			SQLitePath:     getEnv("SQLITE_PATH", "tickets.db"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			DialTimeout: redisDial,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			File:        os.Getenv("LOG_FILE"),
			MaxSizeMB:   getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 50),
			MaxBackups:  getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays:  getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 14),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Discord: DiscordConfig{
			Token:                   os.Getenv("DISCORD_TOKEN"),
			GuildID:                 os.Getenv("GUILD_ID"),
			SellerCategoryID:        os.Getenv("SELLER_CATEGORY_ID"),
			BuyerCategoryID:         os.Getenv("BUYER_CATEGORY_ID"),
			SellerAnnounceChannelID: os.Getenv("SELLER_ANNOUNCE_CHANNEL_ID"),
			BuyerAnnounceChannelID:  os.Getenv("BUYER_ANNOUNCE_CHANNEL_ID"),
			AdminAnnounceChannelID:  os.Getenv("ADMIN_ANNOUNCE_CHANNEL_ID"),
			AdminCheckChannelID:     os.Getenv("ADMIN_CHECK_CHANNEL_ID"),
			AdminRoleID:             os.Getenv("ADMIN_ROLE_ID"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		},
		Lifecycle: LifecycleConfig{
			ArchiveAfter:         archiveAfter,
			RetentionDays:        getEnvAsInt("TICKET_RETENTION_DAYS", 15),
			SweepSchedule:        getEnv("SWEEP_SCHEDULE", "@every 1h"),
			UploadSpacing:        uploadSpacing,
			DeleteSpacing:        deleteSpacing,
			RepublishSpacing:     republishSpacing,
			HistoryLimit:         getEnvAsInt("MEDIA_HISTORY_LIMIT", 100),
			ArchivalBackend:      backend,
			ArchivalPollInterval: pollInterval,
			FetchTimeout:         fetchTimeout,
			MaxAttachmentBytes:   int64(getEnvAsInt("MEDIA_MAX_ATTACHMENT_BYTES", 25*1024*1024)),
		},
	}

	return cfg, nil
}

// ValidateBot reports every setting the bot process cannot start without.
func (c *Config) ValidateBot() error {
	var missing []string
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	require("DISCORD_TOKEN", c.Discord.Token)
	require("GUILD_ID", c.Discord.GuildID)
	require("CLOUDINARY_CLOUD_NAME", c.Cloudinary.CloudName)
	require("CLOUDINARY_API_KEY", c.Cloudinary.APIKey)
	require("CLOUDINARY_API_SECRET", c.Cloudinary.APISecret)
	if c.Store.Driver == StoreDriverPostgres {
		require("POSTGRES_DSN", c.Store.DSN)
	}
	if c.Lifecycle.RetentionDays < 1 {
		missing = append(missing, "TICKET_RETENTION_DAYS (must be >= 1)")
	}
	if len(missing) > 0 {
		return errors.New("missing configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

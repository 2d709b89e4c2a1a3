package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env       string         `yaml:"env"`
	HTTP      HTTPConfig     `yaml:"http"`
	Log       LogConfig      `yaml:"log"`
	Postgres  PostgresConfig `yaml:"postgres"`
	Redis     RedisConfig    `yaml:"redis"`
	Bot       BotConfig      `yaml:"bot"`
	GroupBot  GroupBotConfig `yaml:"group_bot"`
	Market    MarketConfig   `yaml:"market"`
	Window    WindowConfig   `yaml:"window"`
	Rate      RateConfig     `yaml:"rate"`
	WS        WSConfig       `yaml:"ws"`
	StaticDir string         `yaml:"static_dir"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// PostgresConfig with an empty DSN selects the in-process store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig with an empty Addr selects in-process rate windows.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BotConfig drives the moderation bot. ModerationChatID 0 disables human
// moderation and posts are auto-approved.
type BotConfig struct {
	Token            string  `yaml:"token"`
	ModerationChatID int64   `yaml:"moderation_chat_id"`
	AdminIDs         []int64 `yaml:"admin_ids"`
	PollTimeout      int     `yaml:"poll_timeout"`
}

// GroupBotConfig drives the group activity bot. ChatID 0 watches every
// group the bot is in.
type GroupBotConfig struct {
	Token       string  `yaml:"token"`
	ChatID      int64   `yaml:"chat_id"`
	AdminIDs    []int64 `yaml:"admin_ids"`
	PollTimeout int     `yaml:"poll_timeout"`
	HTTPAddr    string  `yaml:"http_addr"`
}

type MarketConfig struct {
	DailyPostLimit     int    `yaml:"daily_post_limit"`
	ComplaintThreshold int    `yaml:"complaint_threshold"`
	Timezone           string `yaml:"timezone"`
	PageSizeDefault    int    `yaml:"page_size_default"`
	PageSizeMax        int    `yaml:"page_size_max"`
	PostCacheSize      int    `yaml:"post_cache_size"`
	UserCacheSize      int    `yaml:"user_cache_size"`
}

type WindowConfig struct {
	Size          int           `yaml:"size"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type RateConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPer10Sec  int `yaml:"requests_per_10sec"`
}

type WSConfig struct {
	SendBuffer      int           `yaml:"send_buffer"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongWait        time.Duration `yaml:"pong_wait"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

func Default() Config {
	return Config{
		Env: "dev",
		HTTP: HTTPConfig{
			Addr:         ":10000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		Log: LogConfig{Level: "debug"},
		Bot: BotConfig{
			PollTimeout: 30,
		},
		GroupBot: GroupBotConfig{
			PollTimeout: 30,
			HTTPAddr:    ":3001",
		},
		Market: MarketConfig{
			DailyPostLimit:     60,
			ComplaintThreshold: 5,
			Timezone:           "UTC",
			PageSizeDefault:    20,
			PageSizeMax:        100,
			PostCacheSize:      1000,
			UserCacheSize:      1000,
		},
		Window: WindowConfig{
			Size:          3,
			TTL:           24 * time.Hour,
			SweepInterval: 2 * time.Minute,
		},
		Rate: RateConfig{
			RequestsPerMinute: 10,
		},
		WS: WSConfig{
			SendBuffer:      64,
			WriteTimeout:    10 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageBytes: 64 << 10,
		},
		StaticDir: "./static",
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Market.DailyPostLimit <= 0 {
		return fmt.Errorf("market.daily_post_limit must be positive")
	}
	if c.Market.ComplaintThreshold <= 0 {
		return fmt.Errorf("market.complaint_threshold must be positive")
	}
	if c.Window.Size <= 0 {
		return fmt.Errorf("window.size must be positive")
	}
	if c.Window.TTL <= 0 || c.Window.SweepInterval <= 0 {
		return fmt.Errorf("window ttl and sweep_interval must be positive")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	if c.Env == "prod" && strings.TrimSpace(c.Postgres.DSN) == "" {
		return fmt.Errorf("postgres.dsn is required in production")
	}
	return nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if err := overrideDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if err := overrideInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if err := overrideInt64("MODERATION_CHAT_ID", &cfg.Bot.ModerationChatID); err != nil {
		return err
	}
	if err := overrideInt64List("BOT_ADMIN_IDS", &cfg.Bot.AdminIDs); err != nil {
		return err
	}

	if v := os.Getenv("MODERATOR_BOT_TOKEN"); v != "" {
		cfg.GroupBot.Token = v
	}
	if err := overrideInt64("GROUP_ID", &cfg.GroupBot.ChatID); err != nil {
		return err
	}
	if err := overrideInt64List("GROUP_BOT_ADMIN_IDS", &cfg.GroupBot.AdminIDs); err != nil {
		return err
	}
	if v := os.Getenv("GROUP_BOT_HTTP_ADDR"); v != "" {
		cfg.GroupBot.HTTPAddr = v
	}

	if err := overrideInt("DAILY_POST_LIMIT", &cfg.Market.DailyPostLimit); err != nil {
		return err
	}
	if err := overrideInt("COMPLAINT_THRESHOLD", &cfg.Market.ComplaintThreshold); err != nil {
		return err
	}
	if v := os.Getenv("MARKET_TIMEZONE"); v != "" {
		cfg.Market.Timezone = v
	}

	if err := overrideInt("WINDOW_SIZE", &cfg.Window.Size); err != nil {
		return err
	}
	if err := overrideDuration("WINDOW_TTL", &cfg.Window.TTL); err != nil {
		return err
	}
	if err := overrideDuration("WINDOW_SWEEP_INTERVAL", &cfg.Window.SweepInterval); err != nil {
		return err
	}

	if err := overrideInt("RATE_LIMIT_MAX_REQUESTS", &cfg.Rate.RequestsPerMinute); err != nil {
		return err
	}

	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}

	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideInt64(key string, target *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s int64: %w", key, err)
	}
	*target = n
	return nil
}

// overrideInt64List reads a comma separated list of ids.
func overrideInt64List(key string, target *[]int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := make([]int64, 0)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s id list: %w", key, err)
		}
		out = append(out, n)
	}
	*target = out
	return nil
}

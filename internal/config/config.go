package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"stock-price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	PriceFeed  PriceFeedConfig  `mapstructure:"pricefeed"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// StorageConfig covers the JSON file store used when no database is configured.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// PriceFeedConfig captures market data API connectivity.
type PriceFeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	FetchDelay     time.Duration `mapstructure:"fetch_delay"`
	Workers        int           `mapstructure:"workers"`
	AllowMock      bool          `mapstructure:"allow_mock"`
}

// AlertingConfig defines dedup tunables and notification routing.
type AlertingConfig struct {
	Enabled            bool           `mapstructure:"enabled"`
	Cooldown           time.Duration  `mapstructure:"cooldown"`
	SignificantMovePct float64        `mapstructure:"significant_move_pct"`
	Channels           []string       `mapstructure:"channels"`
	Email              EmailConfig    `mapstructure:"email"`
	Telegram           TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig 描述 SMTP 告警参数。
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Sender   string `mapstructure:"sender"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EnrichmentConfig selects and parameterises analysis providers.
type EnrichmentConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	Provider       string         `mapstructure:"provider"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	OpenAI         ProviderConfig `mapstructure:"openai"`
	Gemini         ProviderConfig `mapstructure:"gemini"`
	DeepSeek       ProviderConfig `mapstructure:"deepseek"`
}

// ProviderConfig holds one analysis provider's credentials and model choice.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.data_dir", "data")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73746b77))

	v.SetDefault("pricefeed.base_url", "https://api.tushare.pro")
	v.SetDefault("pricefeed.request_timeout", "10s")
	v.SetDefault("pricefeed.fetch_delay", "500ms")
	v.SetDefault("pricefeed.workers", 1)
	v.SetDefault("pricefeed.allow_mock", false)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "60m")
	v.SetDefault("alerting.significant_move_pct", 2.0)
	v.SetDefault("alerting.channels", []string{"email"})
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.host", "smtp.163.com")
	v.SetDefault("alerting.email.port", 25)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.provider", "openai")
	v.SetDefault("enrichment.request_timeout", "30s")
	v.SetDefault("enrichment.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("enrichment.openai.model", "gpt-3.5-turbo")
	v.SetDefault("enrichment.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("enrichment.gemini.model", "gemini-pro")
	v.SetDefault("enrichment.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("enrichment.deepseek.model", "deepseek-chat")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var knownProviders = map[string]bool{
	"openai":   true,
	"gemini":   true,
	"deepseek": true,
}

// provider id aliases kept for older configs; "google" 等同于 "gemini"
var providerAliases = map[string]string{
	"google": "gemini",
}

// NormalizeProvider maps configured provider ids onto canonical ones.
func NormalizeProvider(id string) string {
	lowered := strings.ToLower(strings.TrimSpace(id))
	if mapped, ok := providerAliases[lowered]; ok {
		return mapped
	}
	return lowered
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.SignificantMovePct < 0 {
		return fmt.Errorf("alerting.significant_move_pct cannot be negative")
	}
	if c.PriceFeed.Workers < 0 {
		return fmt.Errorf("pricefeed.workers cannot be negative")
	}
	if c.PriceFeed.Token == "" && !c.PriceFeed.AllowMock {
		return fmt.Errorf("pricefeed.token 必须配置 (或开启 pricefeed.allow_mock)")
	}
	if c.Database.DSN == "" && strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required when database.dsn is not set")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Username == "" || c.Alerting.Email.Password == "" {
			return fmt.Errorf("alerting.email.username/password 必须配置")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Enrichment.Enabled {
		provider := NormalizeProvider(c.Enrichment.Provider)
		if !knownProviders[provider] {
			return fmt.Errorf("enrichment.provider %q is not supported", c.Enrichment.Provider)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

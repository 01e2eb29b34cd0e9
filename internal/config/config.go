package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"procurement-signals/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Data       DataConfig       `mapstructure:"data"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Forecast   ForecastConfig   `mapstructure:"forecast"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Purchasing PurchasingConfig `mapstructure:"purchasing"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig governs the refresh cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// DataConfig selects where market snapshots come from.
type DataConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// RedisConfig 描述 redis 快照存储连接参数。
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	Host      string `mapstructure:"host"`
	Port      string `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ForecastConfig covers the external forecasting model.
type ForecastConfig struct {
	Horizon        int           `mapstructure:"horizon"`
	HistoryDays    int           `mapstructure:"history_days"`
	ServiceURL     string        `mapstructure:"service_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryMax       int           `mapstructure:"retry_max"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ScoringConfig tunes the risk and supply-chain models.
type ScoringConfig struct {
	GeoRiskMode               string             `mapstructure:"geo_risk_mode"`
	DisruptionMode            string             `mapstructure:"disruption_mode"`
	Seed                      int64              `mapstructure:"seed"`
	BasePrices                map[string]float64 `mapstructure:"base_prices"`
	AlternativePriceThreshold float64            `mapstructure:"alternative_price_threshold"`
	PreferredSuppliers        map[string]string  `mapstructure:"preferred_suppliers"`
	NegotiationThresholdPct   float64            `mapstructure:"negotiation_threshold_pct"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	PriceThresholdPct  float64                  `mapstructure:"price_threshold_pct"`
	InventoryThreshold float64                  `mapstructure:"inventory_threshold"`
	RetentionDays      int                      `mapstructure:"retention_days"`
	MaxAlerts          int                      `mapstructure:"max_alerts"`
	Windows            map[string]time.Duration `mapstructure:"windows"`
	Channels           []string                 `mapstructure:"channels"`
	Telegram           TelegramConfig           `mapstructure:"telegram"`
	Kafka              KafkaConfig              `mapstructure:"kafka"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// KafkaConfig 描述告警旁路 topic。
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PurchasingConfig prices generated purchase orders.
type PurchasingConfig struct {
	TaxRate         float64 `mapstructure:"tax_rate"`
	Currency        string  `mapstructure:"currency"`
	DefaultQuantity float64 `mapstructure:"default_quantity"`
	DeliveryAddress string  `mapstructure:"delivery_address"`
}

// StorageConfig selects the alert and purchase order backend.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// HTTPConfig controls the JSON API.
type HTTPConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROCSIGNAL")
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
	v.SetDefault("app.name", "procsignal")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("data.source", "file")
	v.SetDefault("data.path", "data/market.json")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "procsignal")

	v.SetDefault("forecast.horizon", 7)
	v.SetDefault("forecast.history_days", 30)
	v.SetDefault("forecast.service_url", "")
	v.SetDefault("forecast.request_timeout", "10s")
	v.SetDefault("forecast.retry_max", 3)
	v.SetDefault("forecast.user_agent", "procsignal/1.0")

	v.SetDefault("scoring.geo_risk_mode", "baseline")
	v.SetDefault("scoring.disruption_mode", "baseline")
	v.SetDefault("scoring.seed", 0)
	v.SetDefault("scoring.base_prices", map[string]float64{"Copper": 8000, "Aluminum": 2200, "Steel": 750})
	v.SetDefault("scoring.alternative_price_threshold", 0.15)
	v.SetDefault("scoring.negotiation_threshold_pct", 5.0)

	v.SetDefault("alerting.price_threshold_pct", 5.0)
	v.SetDefault("alerting.inventory_threshold", 100.0)
	v.SetDefault("alerting.retention_days", 30)
	v.SetDefault("alerting.max_alerts", 100)
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.brokers", []string{})
	v.SetDefault("alerting.kafka.topic", "procurement.alerts")

	v.SetDefault("purchasing.tax_rate", 0.18)
	v.SetDefault("purchasing.currency", "USD")
	v.SetDefault("purchasing.default_quantity", 100.0)
	v.SetDefault("purchasing.delivery_address", "Warehouse A")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "data/alerts.db")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("export.max_data_points", 1000)
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Forecast.Horizon <= 0 {
		return fmt.Errorf("forecast.horizon must be greater than zero")
	}
	if c.Forecast.HistoryDays < 2 {
		return fmt.Errorf("forecast.history_days must be at least 2")
	}
	switch c.Data.Source {
	case "file", "redis":
	default:
		return fmt.Errorf("data.source %q is not supported", c.Data.Source)
	}
	if err := validateMode("scoring.geo_risk_mode", c.Scoring.GeoRiskMode); err != nil {
		return err
	}
	if err := validateMode("scoring.disruption_mode", c.Scoring.DisruptionMode); err != nil {
		return err
	}
	if c.Scoring.AlternativePriceThreshold < 0 {
		return fmt.Errorf("scoring.alternative_price_threshold cannot be negative")
	}
	if c.Scoring.NegotiationThresholdPct < 0 {
		return fmt.Errorf("scoring.negotiation_threshold_pct cannot be negative")
	}
	if c.Alerting.PriceThresholdPct <= 0 {
		return fmt.Errorf("alerting.price_threshold_pct must be greater than zero")
	}
	if c.Alerting.InventoryThreshold < 0 {
		return fmt.Errorf("alerting.inventory_threshold cannot be negative")
	}
	if c.Alerting.RetentionDays <= 0 {
		return fmt.Errorf("alerting.retention_days must be greater than zero")
	}
	if c.Alerting.MaxAlerts < 0 {
		return fmt.Errorf("alerting.max_alerts cannot be negative")
	}
	for name, window := range c.Alerting.Windows {
		if window < 0 {
			return fmt.Errorf("alerting.windows.%s cannot be negative", name)
		}
	}
	for _, ch := range c.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "log":
		case "telegram":
			if c.Alerting.Telegram.BotToken == "" {
				return fmt.Errorf("alerting.telegram.bot_token 必须配置")
			}
			if c.Alerting.Telegram.ChatID == "" {
				return fmt.Errorf("alerting.telegram.chat_id 必须配置")
			}
		case "kafka":
			if len(c.Alerting.Kafka.Brokers) == 0 {
				return fmt.Errorf("alerting.kafka.brokers 必须配置")
			}
			if c.Alerting.Kafka.Topic == "" {
				return fmt.Errorf("alerting.kafka.topic 必须配置")
			}
		default:
			return fmt.Errorf("alerting channel %q is not supported", ch)
		}
	}
	if c.Purchasing.TaxRate <= 0 || c.Purchasing.TaxRate >= 1 {
		return fmt.Errorf("purchasing.tax_rate must be within (0, 1)")
	}
	if c.Purchasing.DefaultQuantity <= 0 {
		return fmt.Errorf("purchasing.default_quantity must be greater than zero")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}
	return nil
}

func validateMode(key, mode string) error {
	switch mode {
	case "baseline", "simulated":
		return nil
	}
	return fmt.Errorf("%s %q must be baseline or simulated", key, mode)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

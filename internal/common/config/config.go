// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Automation AutomationConfig `mapstructure:"automation"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Templates  TemplateConfig   `mapstructure:"templates"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the process runs in the production environment.
func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Enabled   bool     `mapstructure:"enabled"`
	AuditIndex string  `mapstructure:"audit_index"`
}

// AutomationConfig holds the engine's scheduling knobs. Durations are in the
// unit named by the field.
type AutomationConfig struct {
	Enabled       bool `mapstructure:"enabled"`        // allow dispatch outside production
	ForceDispatch bool `mapstructure:"force_dispatch"` // operator bypass, ignores suppression

	DispatchIntervalSec int `mapstructure:"dispatch_interval_sec"`
	DispatchBatchSize   int `mapstructure:"dispatch_batch_size"`
	ClaimLeaseSec       int `mapstructure:"claim_lease_sec"`

	ReconcileIntervalSec int `mapstructure:"reconcile_interval_sec"`
	RecentWindowMinutes  int `mapstructure:"recent_window_minutes"`

	CheckInLookbackDays   int `mapstructure:"check_in_lookback_days"`
	CheckInLookaheadDays  int `mapstructure:"check_in_lookahead_days"`
	CheckOutLookbackDays  int `mapstructure:"check_out_lookback_days"`
	CheckOutLookaheadDays int `mapstructure:"check_out_lookahead_days"`

	CreatorTag string `mapstructure:"creator_tag"`
}

// DeliveryConfig holds settings for the outbound delivery channels.
type DeliveryConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SES struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sns"`
}

// ChannelsConfig holds the channel credential service settings used by the
// periodic refresh job.
type ChannelsConfig struct {
	Credentials struct {
		URL                string `mapstructure:"url"`
		ClientID           string `mapstructure:"client_id"`
		ClientSecret       string `mapstructure:"client_secret"`
		RefreshIntervalSec int    `mapstructure:"refresh_interval_sec"`
	} `mapstructure:"credentials"`
}

// TemplateConfig holds the message template registry location.
type TemplateConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the metrics/pprof listener settings.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name of the config file looked up in the config directory.
const FileName = "mtbmap.cfg.json"

// Catalog sources.
const (
	SourceEmbedded = "embedded"
	SourceFile     = "file"
	SourceDatabase = "database"
)

// AssetsConfig holds where trail archives and GPX exports are fetched from.
type AssetsConfig struct {
	BaseURL string        `json:"baseUrl" mapstructure:"baseUrl"`
	Dir     string        `json:"dir" mapstructure:"dir"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// RoutesConfig holds the lazy route loading settings.
type RoutesConfig struct {
	ZoomThreshold float64 `json:"zoomThreshold" mapstructure:"zoomThreshold"`
	Concurrency   int     `json:"concurrency" mapstructure:"concurrency"`
}

// OTelConfig holds OpenTelemetry log export settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("catalog.source", SourceEmbedded)
	viper.SetDefault("catalog.path", "./trails.json")

	viper.SetDefault("assets.baseUrl", "")
	viper.SetDefault("assets.dir", "./public")
	viper.SetDefault("assets.timeout", "30s")

	viper.SetDefault("routes.zoomThreshold", 9.5)
	viper.SetDefault("routes.concurrency", 8)

	viper.SetDefault("server.address", ":8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mtbmap")
	viper.SetDefault("db.sqlitePath", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "mtbmap")
	viper.SetDefault("influx.bucket", "trail-loads")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mtbmap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "development")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetAssetsConfig returns the asset source settings.
func GetAssetsConfig() AssetsConfig {
	return AssetsConfig{
		BaseURL: viper.GetString("assets.baseUrl"),
		Dir:     viper.GetString("assets.dir"),
		Timeout: viper.GetDuration("assets.timeout"),
	}
}

// GetRoutesConfig returns the route loading settings.
// A non-positive concurrency is raised to 1.
func GetRoutesConfig() RoutesConfig {
	cfg := RoutesConfig{
		ZoomThreshold: viper.GetFloat64("routes.zoomThreshold"),
		Concurrency:   viper.GetInt("routes.concurrency"),
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

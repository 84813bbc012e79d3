package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

// GatewayConfig points at the Kong-compatible admin API that owns
// consumers and key-auth credentials.
type GatewayConfig struct {
	AdminURL        string        `mapstructure:"admin_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	KeyPrefixLength int           `mapstructure:"key_prefix_length"`
	ProvenanceTag   string        `mapstructure:"provenance_tag"`
}

type EnrichmentConfig struct {
	APIBaseURL       string        `mapstructure:"api_base_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	StreamMaxRetries int           `mapstructure:"stream_max_retries"`
	StreamRetryDelay time.Duration `mapstructure:"stream_retry_delay"`
}

type RateLimitConfig struct {
	APIReadPerMinute  int `mapstructure:"api_read_per_minute"`
	APIWritePerMinute int `mapstructure:"api_write_per_minute"`
	StreamPerMinute   int `mapstructure:"stream_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type WorkerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("gateway.admin_url", "http://localhost:8001")
	viper.SetDefault("gateway.request_timeout", 10*time.Second)
	viper.SetDefault("gateway.key_prefix_length", 8)
	viper.SetDefault("gateway.provenance_tag", "portal")
	viper.SetDefault("enrichment.stream_max_retries", 3)
	viper.SetDefault("enrichment.stream_retry_delay", 2*time.Second)
	viper.SetDefault("worker.reconcile_interval", time.Hour)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Cluster ClusterConfig `yaml:"cluster" mapstructure:"cluster"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures the permit listing API.
type SourceConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	AppToken       string `yaml:"app_token" mapstructure:"app_token"`
	PageSize       int    `yaml:"page_size" mapstructure:"page_size"`
	CallsPerWindow int    `yaml:"calls_per_window" mapstructure:"calls_per_window"`
	WindowMinutes  int    `yaml:"window_minutes" mapstructure:"window_minutes"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ExtractConfig configures the incremental extractor.
type ExtractConfig struct {
	StagingDir   string `yaml:"staging_dir" mapstructure:"staging_dir"`
	LookbackDays int    `yaml:"lookback_days" mapstructure:"lookback_days"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// GeocodeConfig configures the geocoding collaborator.
type GeocodeConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	BatchParallel int     `yaml:"batch_parallel" mapstructure:"batch_parallel"`
	DefaultCity   string  `yaml:"default_city" mapstructure:"default_city"`
	DefaultState  string  `yaml:"default_state" mapstructure:"default_state"`
}

// ClusterConfig configures the clustering engine. Zero values fall back to
// the defaults in the cluster package.
type ClusterConfig struct {
	SpatialRadiusM       float64            `yaml:"spatial_radius_m" mapstructure:"spatial_radius_m"`
	TemporalWindowDays   float64            `yaml:"temporal_window_days" mapstructure:"temporal_window_days"`
	ExtendedWindowDays   float64            `yaml:"extended_window_days" mapstructure:"extended_window_days"`
	MegaprojectThreshold float64            `yaml:"megaproject_threshold" mapstructure:"megaproject_threshold"`
	MinClusterSize       int                `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	AssemblyRadiusM      float64            `yaml:"assembly_radius_m" mapstructure:"assembly_radius_m"`
	CorridorProximityM   float64            `yaml:"corridor_proximity_m" mapstructure:"corridor_proximity_m"`
	StatusWeights        map[string]float64 `yaml:"status_weights" mapstructure:"status_weights"`
}

// ServerConfig configures the read-only consumer API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PERMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "https://data.austintexas.gov/resource/3syk-w9eu.json")
	v.SetDefault("source.page_size", 1000)
	v.SetDefault("source.calls_per_window", 1000)
	v.SetDefault("source.window_minutes", 60)
	v.SetDefault("source.timeout_secs", 60)
	v.SetDefault("extract.staging_dir", "/tmp/permit-intel/staging")
	v.SetDefault("extract.lookback_days", 30)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("geocode.provider", "census")
	v.SetDefault("geocode.base_url", "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress")
	v.SetDefault("geocode.rate_per_sec", 5)
	v.SetDefault("geocode.batch_parallel", 10)
	v.SetDefault("geocode.default_city", "Austin")
	v.SetDefault("geocode.default_state", "TX")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

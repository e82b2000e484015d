package config

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/hybrid"
	"github.com/syeo66/cadence/similarity"
)

// EnvPrefix prefixes every environment override, e.g. CADENCE_PORT or
// CADENCE_RATE_LIMIT_RPS.
const EnvPrefix = "CADENCE"

type Config struct {
	Port         string         `mapstructure:"port" validate:"required,numeric"`
	LogLevel     string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	DatabasePath string         `mapstructure:"db_path" validate:"required"`
	Database     DatabaseConfig `mapstructure:"database"`
	RateLimit    RateLimit      `mapstructure:"rate_limit"`
	Security     Security       `mapstructure:"security"`

	Similarity    similarity.Weights `mapstructure:"similarity"`
	Hybrid        hybrid.Weights     `mapstructure:"hybrid"`
	Recommend     Recommend          `mapstructure:"recommend"`
	Predictor     Predictor          `mapstructure:"predictor"`
	Content       Content            `mapstructure:"content"`
	Collaborative Collaborative      `mapstructure:"collaborative"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"min=0"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"min=0"`
	HealthCheck     bool          `mapstructure:"health_check"`
}

type RateLimit struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps" validate:"gt=0"`
	Burst   int     `mapstructure:"burst" validate:"min=1"`
}

type Security struct {
	HeadersEnabled          bool   `mapstructure:"headers_enabled"`
	DevMode                 bool   `mapstructure:"dev_mode"`
	XContentTypeOptions     string `mapstructure:"x_content_type_options"`
	XFrameOptions           string `mapstructure:"x_frame_options"`
	XXSSProtection          string `mapstructure:"x_xss_protection"`
	StrictTransportSecurity string `mapstructure:"strict_transport_security"`
	ContentSecurityPolicy   string `mapstructure:"content_security_policy"`
	ReferrerPolicy          string `mapstructure:"referrer_policy"`
	TLS                     bool   `mapstructure:"tls"`
}

type Recommend struct {
	DefaultLimit     int           `mapstructure:"default_limit" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit         int           `mapstructure:"max_limit" validate:"min=1"`
	BatchSize        int           `mapstructure:"batch_size" validate:"min=1,max=1000"`
	SimilarCacheTTL  time.Duration `mapstructure:"similar_cache_ttl" validate:"min=0"`
	SimilarCacheSize uint64        `mapstructure:"similar_cache_size"`
}

type Predictor struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"min=0"`
}

type Content struct {
	MinSimilarity float64 `mapstructure:"min_similarity" validate:"min=0,max=1"`
}

type Collaborative struct {
	Neighbors         int     `mapstructure:"neighbors" validate:"min=1"`
	UserNeighbors     int     `mapstructure:"user_neighbors" validate:"min=1"`
	MinUserSimilarity float64 `mapstructure:"min_user_similarity" validate:"min=0,max=1"`
	SparseThreshold   int     `mapstructure:"sparse_threshold" validate:"min=0"`
	Factors           int     `mapstructure:"mf_factors" validate:"min=1"`
	Epochs            int     `mapstructure:"mf_epochs" validate:"min=1"`
	LearningRate      float64 `mapstructure:"mf_learning_rate" validate:"gt=0"`
	Regularization    float64 `mapstructure:"mf_regularization" validate:"min=0"`
	Seed              int64   `mapstructure:"mf_seed"`
}

// IsDevMode reports whether relaxed security headers are forced on.
func (c *Config) IsDevMode() bool {
	return c.Security.DevMode
}

var defaults = map[string]interface{}{
	"port":                               "8080",
	"log_level":                          "info",
	"db_path":                            "cadence.db",
	"database.max_open_conns":            25,
	"database.max_idle_conns":            5,
	"database.conn_max_lifetime":         30 * time.Minute,
	"database.conn_max_idle_time":        5 * time.Minute,
	"database.health_check":              true,
	"rate_limit.enabled":                 true,
	"rate_limit.rps":                     20.0,
	"rate_limit.burst":                   40,
	"security.headers_enabled":           true,
	"security.dev_mode":                  false,
	"security.x_content_type_options":    "nosniff",
	"security.x_frame_options":           "DENY",
	"security.x_xss_protection":          "1; mode=block",
	"security.strict_transport_security": "max-age=31536000; includeSubDomains",
	"security.content_security_policy":   "default-src 'self'",
	"security.referrer_policy":           "strict-origin-when-cross-origin",
	"security.tls":                       false,
	"similarity.audio":                   0.55,
	"similarity.genre":                   0.2,
	"similarity.mood":                    0.1,
	"similarity.artist":                  0.1,
	"similarity.popularity":              0.05,
	"hybrid.collaborative":               0.3,
	"hybrid.content":                     0.3,
	"hybrid.enhanced":                    0.3,
	"hybrid.popularity":                  0.1,
	"recommend.default_limit":            20,
	"recommend.max_limit":                100,
	"recommend.batch_size":               100,
	"recommend.similar_cache_ttl":        10 * time.Minute,
	"recommend.similar_cache_size":       1024,
	"predictor.refresh_interval":         time.Hour,
	"content.min_similarity":             0.3,
	"collaborative.neighbors":            20,
	"collaborative.user_neighbors":       20,
	"collaborative.min_user_similarity":  0.5,
	"collaborative.sparse_threshold":     3,
	"collaborative.mf_factors":           8,
	"collaborative.mf_epochs":            50,
	"collaborative.mf_learning_rate":     0.01,
	"collaborative.mf_regularization":    0.02,
	"collaborative.mf_seed":              42,
}

// flags maps command line flags to their configuration keys.
var flags = []struct {
	name, key, usage string
}{
	{"port", "port", "HTTP server port"},
	{"log-level", "log_level", "Log level (debug, info, warn, error)"},
	{"db-path", "db_path", "Database file path"},
	{"rate-limit-rps", "rate_limit.rps", "Requests per second allowed per client"},
	{"rate-limit-burst", "rate_limit.burst", "Burst size for rate limiting"},
	{"rate-limit-enabled", "rate_limit.enabled", "Enable rate limiting"},
	{"security-headers-enabled", "security.headers_enabled", "Add security headers to responses"},
	{"security-dev-mode", "security.dev_mode", "Use relaxed development security headers"},
	{"model-refresh", "predictor.refresh_interval", "Maximum age of the feature model"},
}

// New loads the configuration from os.Args.
func New(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("cadence", pflag.ContinueOnError)
	return Load(fs, args)
}

// Load resolves the configuration in increasing precedence: defaults, the
// optional --config file, CADENCE_* environment variables, then flags.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	configFile := fs.String("config", "", "Optional configuration file (yaml, toml or json)")
	for _, f := range flags {
		switch d := defaults[f.key].(type) {
		case string:
			fs.String(f.name, d, f.usage)
		case bool:
			fs.Bool(f.name, d, f.usage)
		case int:
			fs.Int(f.name, d, f.usage)
		case float64:
			fs.Float64(f.name, d, f.usage)
		case time.Duration:
			fs.Duration(f.name, d, f.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "INVALID_FLAGS", "failed to parse flags")
	}
	for _, f := range flags {
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "INVALID_FLAGS", "failed to bind flag").
				WithContext("flag", f.name)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, "CONFIG_FILE", "failed to read configuration file").
				WithContext("path", *configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, "INVALID_CONFIG", "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and both weight sets.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return errors.Wrap(err, errors.CategoryConfig, "INVALID_CONFIG", "invalid configuration")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ErrInvalidPort.WithContext("port", c.Port)
	}
	if err := c.Similarity.Validate(); err != nil {
		return errors.ErrInvalidConfig.WithContext("section", "similarity").WithContext("cause", err.Error())
	}
	if err := c.Hybrid.Validate(); err != nil {
		return errors.ErrInvalidConfig.WithContext("section", "hybrid").WithContext("cause", err.Error())
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	var base *errors.CadenceError
	switch fe.StructNamespace() {
	case "Config.Port":
		base = errors.ErrInvalidPort
	case "Config.LogLevel":
		base = errors.ErrInvalidLogLevel
	case "Config.DatabasePath":
		base = errors.ErrInvalidDatabasePath
	default:
		base = errors.ErrInvalidConfig
	}
	return base.
		WithContext("field", fe.StructNamespace()).
		WithContext("rule", fe.Tag()).
		WithContext("value", fe.Value())
}

// Package config handles application configuration loading from a YAML file
// with environment variable overrides.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "flashquiz/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Practice/session tuning
	Practice PracticeConfig `json:"practice" yaml:"practice"`

	// Local state store (ledger, daily stats, XP)
	LocalState LocalStateConfig `json:"local_state" yaml:"local_state"`

	// Explanation service (LLM)
	Explanation ExplanationConfig `json:"explanation" yaml:"explanation"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	AdminUsername string   `json:"admin_username" yaml:"admin_username"`
	AdminPassword string   `json:"admin_password" yaml:"admin_password"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string        `json:"path" yaml:"path"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// PracticeConfig tunes the practice-selection and scoring algorithms.
type PracticeConfig struct {
	// MasteryCeiling is the number of correct answers that removes an entry
	// from the practice backlog.
	MasteryCeiling int `json:"mastery_ceiling" yaml:"mastery_ceiling"`
	// BaseChance is the practice-vs-new selection probability with an
	// almost-empty backlog; the probability approaches ChanceCap
	// asymptotically as the backlog grows (scale ChanceScale).
	BaseChance  float64 `json:"base_chance" yaml:"base_chance"`
	ChanceCap   float64 `json:"chance_cap" yaml:"chance_cap"`
	ChanceScale float64 `json:"chance_scale" yaml:"chance_scale"`
	// XP scoring curve
	MinXP         int           `json:"min_xp" yaml:"min_xp"`
	MaxXP         int           `json:"max_xp" yaml:"max_xp"`
	FastThreshold time.Duration `json:"fast_threshold" yaml:"fast_threshold"`
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold"`
	// Auto-advance delays after a question resolves
	CorrectAdvanceDelay time.Duration `json:"correct_advance_delay" yaml:"correct_advance_delay"`
	RevealAdvanceDelay  time.Duration `json:"reveal_advance_delay" yaml:"reveal_advance_delay"`
}

// LocalStateConfig configures the JSON-file-backed local state store.
type LocalStateConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ExplanationConfig configures the LLM-backed explanation service.
type ExplanationConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKey    string `json:"api_key" yaml:"api_key"`
	Model     string `json:"model" yaml:"model"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "flashquiz"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyDefaults()

	return config, nil
}

// applyDefaults fills in zero values for the practice tuning knobs so a
// sparse config file still produces a working quiz.
func (c *Config) applyDefaults() {
	if c.Practice.MasteryCeiling <= 0 {
		c.Practice.MasteryCeiling = DefaultMasteryCeiling
	}
	if c.Practice.BaseChance <= 0 {
		c.Practice.BaseChance = DefaultBaseChance
	}
	if c.Practice.ChanceCap <= 0 {
		c.Practice.ChanceCap = DefaultChanceCap
	}
	if c.Practice.ChanceScale <= 0 {
		c.Practice.ChanceScale = DefaultChanceScale
	}
	if c.Practice.MinXP <= 0 {
		c.Practice.MinXP = DefaultMinXP
	}
	if c.Practice.MaxXP <= 0 {
		c.Practice.MaxXP = DefaultMaxXP
	}
	if c.Practice.FastThreshold <= 0 {
		c.Practice.FastThreshold = DefaultFastThreshold
	}
	if c.Practice.SlowThreshold <= 0 {
		c.Practice.SlowThreshold = DefaultSlowThreshold
	}
	if c.Practice.CorrectAdvanceDelay <= 0 {
		c.Practice.CorrectAdvanceDelay = DefaultCorrectAdvanceDelay
	}
	if c.Practice.RevealAdvanceDelay <= 0 {
		c.Practice.RevealAdvanceDelay = DefaultRevealAdvanceDelay
	}
	if c.LocalState.Path == "" {
		c.LocalState.Path = DefaultLocalStatePath
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	// sqlite: a single writer avoids SQLITE_BUSY under load
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 1
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 1
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}
	if c.OpenTelemetry.SamplingRate <= 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}
	if c.OpenTelemetry.Protocol == "" {
		c.OpenTelemetry.Protocol = "grpc"
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.Split(yamlTag, ",")[0]

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Durations accept "2s" style values
				if field.Type() == reflect.TypeOf(time.Duration(0)) {
					if d, err := time.ParseDuration(envVal); err == nil {
						field.SetInt(int64(d))
						continue
					}
				}
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("FLASHQUIZ_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Package config loads the question sourcing service configuration from a
// YAML file and lets every field be overridden from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "osscprep/internal/utils"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "OSSC_CONFIG_FILE"

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	AI            AIConfig            `json:"ai" yaml:"ai"`
	Bank          BankConfig          `json:"bank" yaml:"bank"`
	Usage         UsageConfig         `json:"usage" yaml:"usage"`
	Exam          ExamConfig          `json:"exam" yaml:"exam"`
	Worker        WorkerConfig        `json:"worker" yaml:"worker"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig configures the Postgres event sink. An empty URL disables it.
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// EventBuffer bounds the number of sourcing events queued for the writer.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// RedisConfig configures the shared usage-set store. An empty URL keeps
// usage sets in process memory.
type RedisConfig struct {
	URL       string `json:"url" yaml:"url"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"` // e.g. "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"` // "grpc" or "http"
	Insecure       bool              `json:"insecure" yaml:"insecure"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	ServiceName    string            `json:"service_name" yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`
}

// LoggingConfig controls the zap logger. File, when set, adds a rotating
// JSON log file next to stdout.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// AIConfig covers the generation tier: which provider to call, how to race
// models and when to stop calling them.
type AIConfig struct {
	// Provider is "openrouter" or "ollama".
	Provider   string           `json:"provider" yaml:"provider"`
	OpenRouter OpenRouterConfig `json:"openrouter" yaml:"openrouter"`
	Ollama     OllamaConfig     `json:"ollama" yaml:"ollama"`

	// RaceWidth is how many models from the head of the list are raced.
	RaceWidth         int           `json:"race_width" yaml:"race_width"`
	CallTimeout       time.Duration `json:"call_timeout" yaml:"call_timeout"`
	MinResponseLength int           `json:"min_response_length" yaml:"min_response_length"`
	SequentialDelay   time.Duration `json:"sequential_delay" yaml:"sequential_delay"`
	RateLimitBackoff  time.Duration `json:"rate_limit_backoff" yaml:"rate_limit_backoff"`
	BreakerThreshold  int           `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown   time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown"`
	BatchSize         int           `json:"batch_size" yaml:"batch_size"`
	BatchStagger      time.Duration `json:"batch_stagger" yaml:"batch_stagger"`
}

// OpenRouterConfig describes the hosted chat-completion endpoint.
type OpenRouterConfig struct {
	BaseURL           string   `json:"base_url" yaml:"base_url"`
	APIKey            string   `json:"api_key" yaml:"api_key"`
	Referer           string   `json:"referer" yaml:"referer"`
	Title             string   `json:"title" yaml:"title"`
	Models            []string `json:"models" yaml:"models"`
	ChatModel         string   `json:"chat_model" yaml:"chat_model"`
	ExplanationModel  string   `json:"explanation_model" yaml:"explanation_model"`
	TranslationModel  string   `json:"translation_model" yaml:"translation_model"`
	Temperature       float64  `json:"temperature" yaml:"temperature"`
	MaxTokens         int      `json:"max_tokens" yaml:"max_tokens"`
	TopP              float64  `json:"top_p" yaml:"top_p"`
	RequestsPerMinute int      `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// OllamaConfig describes a local Ollama server.
type OllamaConfig struct {
	URL    string   `json:"url" yaml:"url"`
	Models []string `json:"models" yaml:"models"`
}

// BankConfig points at an external corpus. Empty paths use the embedded sample.
// ExtraPaths are merged into the corpus when present, typically the
// worker's generated output.
type BankConfig struct {
	CorpusPath  string   `json:"corpus_path" yaml:"corpus_path"`
	MappingPath string   `json:"mapping_path" yaml:"mapping_path"`
	ExtraPaths  []string `json:"extra_paths" yaml:"extra_paths"`
}

// UsageConfig decides whether served question ids survive a new session.
type UsageConfig struct {
	PersistAcrossSessions bool          `json:"persist_across_sessions" yaml:"persist_across_sessions"`
	TTL                   time.Duration `json:"ttl" yaml:"ttl"`
}

// ExamConfig sizes generated tests.
type ExamConfig struct {
	MockTestQuestions  int `json:"mock_test_questions" yaml:"mock_test_questions"`
	DailyTestQuestions int `json:"daily_test_questions" yaml:"daily_test_questions"`
}

// WorkerConfig drives the corpus growth worker. Topics whose bank coverage
// is below TargetPerTopic get AI-generated questions appended to OutputPath.
type WorkerConfig struct {
	Port            string        `json:"port" yaml:"port"`
	Exam            string        `json:"exam" yaml:"exam"`
	Interval        time.Duration `json:"interval" yaml:"interval"`
	TargetPerTopic  int           `json:"target_per_topic" yaml:"target_per_topic"`
	MaxPerRun       int           `json:"max_per_run" yaml:"max_per_run"`
	OutputPath      string        `json:"output_path" yaml:"output_path"`
	StartPaused     bool          `json:"start_paused" yaml:"start_paused"`
	FailureBackoff  time.Duration `json:"failure_backoff" yaml:"failure_backoff"`
	MaxHistory      int           `json:"max_history" yaml:"max_history"`
	MaxActivityLogs int           `json:"max_activity_logs" yaml:"max_activity_logs"`
}

// IsAIConfigured reports whether the generation tier has anything to call.
func (c *Config) IsAIConfigured() bool {
	switch c.AI.Provider {
	case ProviderOllama:
		return c.AI.Ollama.URL != "" && len(c.AI.Ollama.Models) > 0
	default:
		return contextutils.HasUsableCredential(c.AI.OpenRouter.APIKey) && len(c.AI.OpenRouter.Models) > 0
	}
}

// GenerationModels returns the priority-ordered model list of the active provider.
func (c *Config) GenerationModels() []string {
	if c.AI.Provider == ProviderOllama {
		return c.AI.Ollama.Models
	}
	return c.AI.OpenRouter.Models
}

// ApplyDefaults fills every zero value with its documented default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Port, DefaultServerPort)

	setInt(&c.Database.MaxOpenConns, 10)
	setInt(&c.Database.MaxIdleConns, 5)
	setDuration(&c.Database.ConnMaxLifetime, DatabaseConnMaxLifetime)
	setInt(&c.Database.EventBuffer, DefaultEventBuffer)

	setString(&c.Redis.KeyPrefix, DefaultRedisKeyPrefix)

	setString(&c.OpenTelemetry.Protocol, "grpc")
	setString(&c.OpenTelemetry.ServiceName, DefaultServiceName)
	if c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}

	setString(&c.Logging.Level, "info")
	setInt(&c.Logging.MaxSizeMB, 100)
	setInt(&c.Logging.MaxBackups, 5)
	setInt(&c.Logging.MaxAgeDays, 28)

	setString(&c.AI.Provider, ProviderOpenRouter)
	setString(&c.AI.OpenRouter.BaseURL, DefaultOpenRouterURL)
	setString(&c.AI.OpenRouter.Referer, DefaultOpenRouterReferer)
	setString(&c.AI.OpenRouter.Title, DefaultOpenRouterTitle)
	if len(c.AI.OpenRouter.Models) == 0 {
		c.AI.OpenRouter.Models = append([]string(nil), DefaultOpenRouterModels...)
	}
	setString(&c.AI.OpenRouter.ChatModel, DefaultOpenRouterModels[0])
	setString(&c.AI.OpenRouter.ExplanationModel, DefaultOpenRouterModels[1])
	setString(&c.AI.OpenRouter.TranslationModel, DefaultOpenRouterModels[1])
	if c.AI.OpenRouter.Temperature == 0 {
		c.AI.OpenRouter.Temperature = DefaultTemperature
	}
	setInt(&c.AI.OpenRouter.MaxTokens, DefaultMaxTokens)
	if c.AI.OpenRouter.TopP == 0 {
		c.AI.OpenRouter.TopP = DefaultTopP
	}
	setInt(&c.AI.OpenRouter.RequestsPerMinute, DefaultRequestsPerMinute)
	if len(c.AI.Ollama.Models) == 0 {
		c.AI.Ollama.Models = []string{DefaultOllamaModel}
	}

	setInt(&c.AI.RaceWidth, DefaultRaceWidth)
	setDuration(&c.AI.CallTimeout, AIRequestTimeout)
	setInt(&c.AI.MinResponseLength, DefaultMinResponseLength)
	setDuration(&c.AI.SequentialDelay, SequentialAttemptDelay)
	setDuration(&c.AI.RateLimitBackoff, RateLimitBackoff)
	setInt(&c.AI.BreakerThreshold, DefaultBreakerThreshold)
	setDuration(&c.AI.BreakerCooldown, BreakerCooldown)
	setInt(&c.AI.BatchSize, DefaultBatchSize)
	setDuration(&c.AI.BatchStagger, BatchStagger)

	setDuration(&c.Usage.TTL, UsageSetTTL)

	setInt(&c.Exam.MockTestQuestions, DefaultMockTestQuestions)
	setInt(&c.Exam.DailyTestQuestions, DefaultDailyTestQuestions)

	setString(&c.Worker.Port, DefaultWorkerPort)
	setString(&c.Worker.Exam, "RI")
	setDuration(&c.Worker.Interval, WorkerInterval)
	setInt(&c.Worker.TargetPerTopic, DefaultWorkerTargetPerTopic)
	setInt(&c.Worker.MaxPerRun, DefaultWorkerMaxPerRun)
	setString(&c.Worker.OutputPath, DefaultWorkerOutputPath)
	setDuration(&c.Worker.FailureBackoff, WorkerFailureBackoff)
	setInt(&c.Worker.MaxHistory, DefaultWorkerMaxHistory)
	setInt(&c.Worker.MaxActivityLogs, DefaultWorkerMaxActivityLogs)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}

// NewConfig loads configuration from YAML file first, then overrides with
// environment variables and finally applies defaults.
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.ApplyDefaults()

	return config, nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// envKeyFor turns a yaml tag into its environment variable name under prefix.
func envKeyFor(prefix, yamlTag string) string {
	name := strings.ToUpper(strings.ReplaceAll(strings.Split(yamlTag, ",")[0], "-", "_"))
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

// overrideStructFromEnvWithPrefix walks v and sets every field whose derived
// environment variable is present. Nested structs extend the prefix, so
// ai.openrouter.api_key is read from AI_OPENROUTER_API_KEY.
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

		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envKey := envKeyFor(prefix, yamlTag)

		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				} else if ms, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(int64(time.Duration(ms) * time.Millisecond))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
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
			if envVal := os.Getenv(envKey); envVal != "" && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(envVal, ",")
				for i := range parts {
					parts[i] = strings.TrimSpace(parts[i])
				}
				field.Set(reflect.ValueOf(parts))
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides reads the file named by OSSC_CONFIG_FILE, or
// config.yaml. Only the default file may be absent.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv(ConfigFileEnv); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return config, err
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

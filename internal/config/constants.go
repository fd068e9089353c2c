package config

import "time"

// Provider identifiers accepted in ai.provider
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// OpenRouter defaults
const (
	DefaultOpenRouterURL     = "https://openrouter.ai/api/v1"
	DefaultOpenRouterReferer = "https://ossc-exam-prep.web.app"
	DefaultOpenRouterTitle   = "OSSC Exam Prep Platform"
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 6000
	DefaultTopP              = 0.95
	DefaultRequestsPerMinute = 30
	DefaultOllamaModel       = "llama3.1:8b"
)

// DefaultOpenRouterModels is the priority order used for racing and
// sequential fallback. The first entry is also the tutor chat model.
var DefaultOpenRouterModels = []string{
	"tngtech/deepseek-r1t2-chimera:free",
	"zhipu-ai/glm-4-air:free",
	"deepseek/deepseek-r1-0528:free",
	"meta-llama/llama-3.3-70b-instruct:free",
	"google/gemma-3-4b-it:free",
	"microsoft/phi-4:free",
	"qwen/qwen-2.5-7b-instruct:free",
}

// Timeout constants
const (
	// AIRequestTimeout bounds a single model call
	AIRequestTimeout       = 90 * time.Second
	SequentialAttemptDelay = 500 * time.Millisecond
	RateLimitBackoff       = 3 * time.Second
	BreakerCooldown        = 30 * time.Second
	BatchStagger           = 1 * time.Second

	DatabaseConnMaxLifetime = 5 * time.Minute
	UsageSetTTL             = 30 * 24 * time.Hour
	SessionMaxAge           = 7 * 24 * time.Hour

	ShutdownTimeout = 30 * time.Second

	// WorkerInterval is the pause between corpus growth runs
	WorkerInterval       = 30 * time.Minute
	WorkerFailureBackoff = 5 * time.Minute
	WorkerMaxBackoff     = 6 * time.Hour
)

// Sizing defaults
const (
	DefaultRaceWidth          = 3
	DefaultMinResponseLength  = 20
	DefaultBreakerThreshold   = 5
	DefaultBatchSize          = 20
	DefaultMockTestQuestions  = 100
	DefaultDailyTestQuestions = 10
	DefaultEventBuffer        = 256

	DefaultWorkerTargetPerTopic  = 10
	DefaultWorkerMaxPerRun       = 40
	DefaultWorkerMaxHistory      = 50
	DefaultWorkerMaxActivityLogs = 200
)

// Server defaults
const (
	DefaultServerPort  = "8080"
	DefaultServiceName = "ossc-sourcing"
	DefaultWorkerPort  = "8081"
	WorkerServiceName  = "ossc-worker"

	DefaultWorkerOutputPath = "generated_questions.json"
	DefaultRedisKeyPrefix   = "ossc:usage:"
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // true once served over HTTPS

	SessionName = "ossc-session"
)

// DefaultCSP is the Content Security Policy sent with every response
const DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data:;"

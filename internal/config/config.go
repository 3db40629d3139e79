package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	AppEnv             string // "production" makes speech synthesis failures fatal
	LogMode            string // "prod" = JSON logs, anything else = development console
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL     string
	DispatchMode string // "queue" (redis + worker) or "inline" (single process)
	UsageBackend string // "memory" or "redis"

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// OpenAI (preferred narration script provider)
	OpenAIKey   string
	OpenAIModel string

	// Gemini (script provider when no OpenAI key is set)
	GeminiKey   string
	GeminiModel string

	// ElevenLabs (speech; mock audio when unset)
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModel   string

	// Cartesia (speech when no ElevenLabs key is set)
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// TTS accounting and pacing
	TTSMonthlyCharLimit int64
	TTSMaxScriptChars   int
	TTSCallDelay        time.Duration
	TTSTimeout          time.Duration
	ScriptTimeout       time.Duration

	// Worker
	TempDir           string
	MaxConcurrentJobs int
	LessonLockTTL     time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		AppEnv:                getEnv("APP_ENV", "development"),
		LogMode:               getEnv("LOG_MODE", "dev"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		DispatchMode:          strings.ToLower(getEnv("DISPATCH_MODE", "queue")),
		UsageBackend:          strings.ToLower(getEnv("USAGE_BACKEND", "memory")),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "lesson-videos"),
		OpenAIKey:             getSecret("OPENAI_API_KEY"),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		GeminiKey:             getSecret("GEMINI_API_KEY"),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ElevenLabsKey:         getSecret("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModel:       getEnv("ELEVENLABS_MODEL", "eleven_monolingual_v1"),
		CartesiaKey:           getSecret("CARTESIA_API_KEY"),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		TTSMonthlyCharLimit:   int64(getEnvInt("TTS_MONTHLY_CHAR_LIMIT", 10000)),
		TTSMaxScriptChars:     getEnvInt("TTS_MAX_SCRIPT_CHARS", 500),
		TTSCallDelay:          time.Duration(getEnvInt("TTS_CALL_DELAY_MS", 1000)) * time.Millisecond,
		TTSTimeout:            time.Duration(getEnvInt("TTS_TIMEOUT_SECONDS", 60)) * time.Second,
		ScriptTimeout:         time.Duration(getEnvInt("SCRIPT_TIMEOUT_SECONDS", 30)) * time.Second,
		TempDir:               getEnv("TEMP_DIR", "/tmp/lessoncast"),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		LessonLockTTL:         time.Duration(getEnvInt("LESSON_LOCK_TTL_MINUTES", 30)) * time.Minute,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if cfg.DispatchMode != "queue" && cfg.DispatchMode != "inline" {
		return nil, fmt.Errorf("DISPATCH_MODE must be queue or inline, got %q", cfg.DispatchMode)
	}

	if cfg.UsageBackend != "memory" && cfg.UsageBackend != "redis" {
		return nil, fmt.Errorf("USAGE_BACKEND must be memory or redis, got %q", cfg.UsageBackend)
	}

	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}

	return cfg, nil
}

// IsProduction reports whether provider failures must surface instead of
// falling back to mock output.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// NeedsRedis reports whether any configured component talks to redis.
func (c *Config) NeedsRedis() bool {
	return c.DispatchMode == "queue" || c.UsageBackend == "redis"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getSecret treats template placeholders such as "your_openai_api_key" as unset.
func getSecret(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if strings.HasPrefix(strings.ToLower(value), "your_") {
		return ""
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

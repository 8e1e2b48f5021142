package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"       validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Task       TaskConfig       `mapstructure:"task"       validate:"required"`
	Cache      CacheConfig      `mapstructure:"cache"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication and authorization settings. The
// service only verifies tokens issued by the external identity provider;
// it never issues or stores credentials itself.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// GenerationConfig contains content generator (LLM) settings.
type GenerationConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name"     validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"        validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// TaskConfig contains task runner and workflow settings.
type TaskConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size"   validate:"required,gt=0"`

	// TimeoutMinutes is the deadline after which the reaper marks a
	// starting/running task as timed out.
	TimeoutMinutes int `mapstructure:"timeout_minutes" validate:"required,gt=0"`

	// RequeueIntervalSeconds controls how often queued (overflow) tasks
	// are re-offered to the dispatch queue and how often the reaper scans.
	RequeueIntervalSeconds int `mapstructure:"requeue_interval_seconds" validate:"required,gt=0"`

	// FailureRateThreshold is the fraction of failed items (0-1) above
	// which a workflow with partial errors is marked failed instead of
	// completed.
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
}

// CacheConfig contains optional plan-cache settings. An empty RedisURL
// disables caching entirely.
type CacheConfig struct {
	RedisURL   string `mapstructure:"redis_url"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"gte=0"`
}

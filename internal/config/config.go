package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting. Feature flags and calendar settings live
// here instead of a key/value table.
type Config struct {
	AppAddr  string `mapstructure:"APP_ADDR"`
	GinMode  string `mapstructure:"GIN_MODE"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`

	JWTSecret          string `mapstructure:"JWT_SECRET"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RateLimitPerMin    int    `mapstructure:"RATE_LIMIT_PER_MIN"`

	// DefaultFlatRate prices trips whose destination has no tiers and no trip rate.
	DefaultFlatRate int64 `mapstructure:"DEFAULT_FLAT_RATE"`

	TripLockBackend string        `mapstructure:"TRIP_LOCK_BACKEND"`
	TripLockTTL     time.Duration `mapstructure:"TRIP_LOCK_TTL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisLockDB     int           `mapstructure:"REDIS_LOCK_DB"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	// TaskQueue selects background job delivery: "asynq" (Redis) or "inline".
	TaskQueue         string `mapstructure:"TASK_QUEUE"`
	RedisQueueDB      int    `mapstructure:"REDIS_QUEUE_DB"`
	TaskMaxRetry      int    `mapstructure:"TASK_MAX_RETRY"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`

	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileRepair   bool          `mapstructure:"RECONCILE_REPAIR"`
	CalendarProviders string        `mapstructure:"CALENDAR_PROVIDERS"`
}

// Load reads .env (if any), an optional config.yaml and the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Println("no config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("GIN_MODE", "")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "shuttle")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("DEFAULT_FLAT_RATE", 50)
	v.SetDefault("TRIP_LOCK_BACKEND", "memory")
	v.SetDefault("TRIP_LOCK_TTL", 15*time.Second)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_LOCK_DB", 0)
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "shuttle.events")
	v.SetDefault("TASK_QUEUE", "asynq")
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("TASK_MAX_RETRY", 5)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("RECONCILE_INTERVAL", time.Hour)
	v.SetDefault("RECONCILE_REPAIR", false)
	v.SetDefault("CALENDAR_PROVIDERS", "inhouse")
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// CalendarProviderNames returns the provider chain order, first tried first.
func (c Config) CalendarProviderNames() []string {
	return splitList(c.CalendarProviders)
}

func splitList(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

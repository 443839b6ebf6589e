package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Redis         RedisConfig
	Log           LogConfig
	Health        HealthConfig
	MetadataCache MetadataCacheConfig
	RateLimit     RateLimitConfig
	Storage       StorageSettings
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

type LogConfig struct {
	Level  string
	Format string // json or text
}

type HealthConfig struct {
	// RequestTimeout bounds a whole /health request.
	RequestTimeout time.Duration
	// RedisCachedResultTimeout is the freshness window of the redis health check.
	RedisCachedResultTimeout time.Duration
}

type MetadataCacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// RateLimitConfig throttles the storage API per provider and client address.
// A zero RequestsPerMinute disables limiting; it also requires Redis.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstMultiplier   float64
	Window            time.Duration
	KeyPrefix         string
}

// IsProduction reports whether health messages must hide account and container names.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("SERVER_ALLOWED_ORIGINS"),
			Environment:    env,
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", ""),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Health: HealthConfig{
			RequestTimeout:           getDurationEnv("HEALTH_REQUEST_TIMEOUT", 10*time.Second),
			RedisCachedResultTimeout: getDurationEnv("HEALTH_REDIS_CACHED_RESULT_TIMEOUT", 30*time.Second),
		},
		MetadataCache: MetadataCacheConfig{
			TTL:       getDurationEnv("METADATA_CACHE_TTL", 0),
			KeyPrefix: getEnv("METADATA_CACHE_KEY_PREFIX", "blobcache"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_RPM", 0),
			BurstMultiplier:   getFloatEnv("RATE_LIMIT_BURST", 1.0),
			Window:            getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:         getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:storage"),
		},
	}

	storage, err := loadStorageSettings()
	if err != nil {
		return nil, err
	}
	cfg.Storage = *storage

	return cfg, nil
}

// loadStorageSettings reads instances from STORAGE_SETTINGS_FILE when set, otherwise from
// STORAGE_INSTANCES and the per-instance STORAGE_<KEY>_* variables.
func loadStorageSettings() (*StorageSettings, error) {
	if path := getEnv("STORAGE_SETTINGS_FILE", ""); path != "" {
		return LoadStorageSettingsFile(path)
	}

	settings := &StorageSettings{Instances: map[string]*StorageInstanceSettings{}}
	for _, key := range getListEnv("STORAGE_INSTANCES") {
		prefix := "STORAGE_" + envKey(key) + "_"
		inst := &StorageInstanceSettings{
			Name: getEnv(prefix+"NAME", key),
			Client: ClientOptions{
				MaxRetries: getIntEnv(prefix+"MAX_RETRIES", 0),
				TryTimeout: getDurationEnv(prefix+"TRY_TIMEOUT", 0),
			},
			Health: HealthOptions{
				CachedResultTimeout: getDurationEnv(prefix+"HEALTH_CACHED_RESULT_TIMEOUT", 0),
				ContainerName:       getEnv(prefix+"HEALTH_CONTAINER", ""),
				FailureStatus:       getEnv(prefix+"HEALTH_FAILURE_STATUS", ""),
				Timeout:             getDurationEnv(prefix+"HEALTH_TIMEOUT", 0),
				Tags:                getListEnv(prefix + "HEALTH_TAGS"),
			},
		}
		inst.ParseConnection(getEnv(prefix+"CONNECTION", ""))
		settings.Instances[key] = inst
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// RedisAddr returns host:port for the redis client.
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

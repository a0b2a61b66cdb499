package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SignalBackendRedis = "redis"
	SignalBackendNone  = "none"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 10s
	RequestTimeout  time.Duration // per HTTP request

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	DatabaseURL string // postgres DSN, required

	// Worker
	BaseDir           string        // downloads land in <BaseDir>/OrderFiles/...
	MaxParallelism    int           // concurrent downloads per cycle
	SignalTimeout     time.Duration // longest wait for a wake before polling anyway
	HTTPClientTimeout time.Duration // per download request
	PartGCInterval    time.Duration // how often abandoned part files are swept
	PartGCThreshold   time.Duration // part files older than this are deleted

	// Wake signal
	SignalBackend string // "redis" | "none"
	SignalKey     string // Redis list shared by api and worker

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Intake
	ReadyzCIDRs        []string // optional, restrict /readyz to these IPs/CIDRs
	TrustProxy         bool     // true => trust X-Forwarded-For headers
	IntakeBurst        int      // POST /order burst per client, 0 disables rate limiting
	IntakeRefillPerMin int      // POST /order tokens regained per minute
}

// Load reads the configuration from the environment. When
// ORDERFILES_CONFIG_FILE names a YAML file its values become the defaults the
// environment overrides.
func Load() *Config {
	f := fileConfig{}
	if path := os.Getenv("ORDERFILES_CONFIG_FILE"); path != "" {
		var err error
		if f, err = loadFile(path); err != nil {
			panic(fmt.Sprintf("❌ FATAL: %v", err))
		}
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("ORDERFILES_LISTEN_PORT", or(f.ListenPort, ":8080")),
		ShutdownTimeout: mustDuration("ORDERFILES_SHUTDOWN_TIMEOUT", or(f.ShutdownTimeout, 10*time.Second)),
		RequestTimeout:  mustDuration("ORDERFILES_REQUEST_TIMEOUT", or(f.RequestTimeout, 30*time.Second)),

		// Logging
		LogLevel:  getenv("ORDERFILES_LOG_LEVEL", or(f.LogLevel, "info")),
		PrettyLog: mustBool("ORDERFILES_PRETTY_LOG", orBool(f.PrettyLog, true)),

		DatabaseURL: getenv("ORDERFILES_DATABASE_URL", f.DatabaseURL),

		// Worker settings
		BaseDir:           getenv("ORDERFILES_BASE_DIR", or(f.BaseDir, "./data")),
		MaxParallelism:    getenvInt("ORDERFILES_MAX_PARALLELISM", or(f.MaxParallelism, 4)),
		SignalTimeout:     mustDuration("ORDERFILES_SIGNAL_TIMEOUT", or(f.SignalTimeout, 30*time.Second)),
		HTTPClientTimeout: mustDuration("ORDERFILES_HTTP_CLIENT_TIMEOUT", or(f.HTTPClientTimeout, 100*time.Second)),
		PartGCInterval:    mustDuration("ORDERFILES_PART_GC_INTERVAL", or(f.PartGCInterval, time.Hour)),
		PartGCThreshold:   mustDuration("ORDERFILES_PART_GC_THRESHOLD", or(f.PartGCThreshold, 24*time.Hour)),

		SignalBackend: strings.ToLower(getenv("ORDERFILES_SIGNAL_BACKEND", or(f.SignalBackend, SignalBackendRedis))),
		SignalKey:     getenv("ORDERFILES_SIGNAL_KEY", or(f.SignalKey, "orderfiles:signal")),

		// Redis settings
		RedisAddr:             getenv("REDIS_ADDR", f.Redis.Addr),
		RedisUser:             getenv("REDIS_USERNAME", f.Redis.Username),
		RedisPasswordRequired: mustBool("REDIS_PASSWORD_REQUIRED", orBool(f.Redis.PasswordRequired, false)),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("REDIS_DB", f.Redis.DB),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", or(f.Redis.PoolSize, 10)),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Intake
		ReadyzCIDRs:        splitAndTrim(getenv("ORDERFILES_READYZ_CIDRS", strings.Join(f.ReadyzCIDRs, ","))),
		TrustProxy:         mustBool("ORDERFILES_TRUST_PROXY", orBool(f.TrustProxy, false)),
		IntakeBurst:        getenvInt("ORDERFILES_INTAKE_BURST", or(f.IntakeBurst, 20)),
		IntakeRefillPerMin: getenvInt("ORDERFILES_INTAKE_REFILL_PER_MIN", or(f.IntakeRefillPerMin, 60)),
	}

	cfg.validate()

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.DatabaseURL = "***REDACTED***"
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// validate panics on settings the services cannot start with.
func (c *Config) validate() {
	if c.DatabaseURL == "" {
		panic("❌ FATAL: Required environment variable ORDERFILES_DATABASE_URL is not set")
	}
	if c.MaxParallelism <= 0 {
		panic(fmt.Sprintf("❌ FATAL: ORDERFILES_MAX_PARALLELISM must be > 0, got %d", c.MaxParallelism))
	}
	// BLPOP blocks in whole seconds, a shorter timeout would be overrun
	if c.SignalTimeout < time.Second {
		panic(fmt.Sprintf("❌ FATAL: ORDERFILES_SIGNAL_TIMEOUT must be >= 1s, got %v", c.SignalTimeout))
	}
	if c.HTTPClientTimeout <= 0 {
		panic(fmt.Sprintf("❌ FATAL: ORDERFILES_HTTP_CLIENT_TIMEOUT must be > 0, got %v", c.HTTPClientTimeout))
	}
	if c.PartGCInterval <= 0 {
		panic(fmt.Sprintf("❌ FATAL: ORDERFILES_PART_GC_INTERVAL must be > 0, got %v", c.PartGCInterval))
	}

	switch c.SignalBackend {
	case SignalBackendRedis:
		if c.RedisAddr == "" {
			panic("❌ FATAL: REDIS_ADDR is required when ORDERFILES_SIGNAL_BACKEND=redis")
		}
	case SignalBackendNone:
	default:
		panic(fmt.Sprintf("❌ FATAL: ORDERFILES_SIGNAL_BACKEND must be %q or %q, got %q",
			SignalBackendRedis, SignalBackendNone, c.SignalBackend))
	}

	if c.RedisPasswordRequired && c.RedisPassword == "" {
		panic("❌ FATAL: REDIS_PASSWORD is required when REDIS_PASSWORD_REQUIRED=true")
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// or returns v unless it is the zero value.
func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func orBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

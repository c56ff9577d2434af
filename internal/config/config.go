package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
)

const (
	defaultAppName         = "UBILedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultAuthority       = "dailycoin"
	defaultSymbol          = "4,XDL"
	defaultAnnualRate      = "0.999"
	defaultMaxPastDays     = 360
	defaultBonusCutoffDay  = 18628
	defaultMaxBonusDays    = 360
	defaultClaimRateLimit  = 10
	defaultEventStream     = "ledger:events"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// LedgerAuthority is the account allowed to create currencies.
	LedgerAuthority      string
	DefaultSymbol        asset.Symbol
	DemurrageAnnualRate  decimal.Decimal
	MaxPastClaimDays     int64
	SignupBonusCutoffDay calendar.Day
	MaxSignupBonusDays   int64
	ClaimRateLimitPerMin int
	EventStream          string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		LedgerAuthority: getEnv("LEDGER_AUTHORITY", defaultAuthority),
		EventStream:     getEnv("EVENT_STREAM", defaultEventStream),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationFromEnv("", "ACCESS_TOKEN_TTL", defaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationFromEnv("", "REFRESH_TOKEN_TTL", defaultRefreshTTL); err != nil {
		return Config{}, err
	}

	if cfg.DefaultSymbol, err = asset.ParseSymbol(getEnv("DEFAULT_SYMBOL", defaultSymbol)); err != nil {
		return Config{}, fmt.Errorf("invalid DEFAULT_SYMBOL: %w", err)
	}
	if cfg.DemurrageAnnualRate, err = decimal.NewFromString(getEnv("DEMURRAGE_ANNUAL_RATE", defaultAnnualRate)); err != nil {
		return Config{}, fmt.Errorf("invalid DEMURRAGE_ANNUAL_RATE: %w", err)
	}
	if cfg.MaxPastClaimDays, err = intFromEnv("MAX_PAST_CLAIM_DAYS", defaultMaxPastDays); err != nil {
		return Config{}, err
	}
	cutoff, err := intFromEnv("SIGNUP_BONUS_CUTOFF_DAY", defaultBonusCutoffDay)
	if err != nil {
		return Config{}, err
	}
	cfg.SignupBonusCutoffDay = calendar.Day(cutoff)
	if cfg.MaxSignupBonusDays, err = intFromEnv("MAX_SIGNUP_BONUS_DAYS", defaultMaxBonusDays); err != nil {
		return Config{}, err
	}
	limit, err := intFromEnv("CLAIM_RATE_LIMIT_PER_MIN", defaultClaimRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ClaimRateLimitPerMin = int(limit)

	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-access-secret"
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = "dev-refresh-secret"
	}

	return cfg, nil
}

// IsProduction reports whether the service runs outside development.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationFromEnv prefers a whole number of seconds in secondsKey and falls
// back to a Go duration string in durationKey.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intFromEnv(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

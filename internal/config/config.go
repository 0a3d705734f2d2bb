package config

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/Skotchmaster/retro_games/internal/models"
	pkgconfig "github.com/Skotchmaster/retro_games/pkg/config"
	pkgdb "github.com/Skotchmaster/retro_games/pkg/db"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	RedisURL           string
	ValidateRateLimit  int
	ValidateRateWindow time.Duration

	SubscriptionPeriod time.Duration
	CORSOrigins        []string
	CSRFEnabled        bool
	CookieSecure       bool
}

func Load() Config {
	return Config{
		ServiceName: pkgconfig.EnvDefault("SERVICE_NAME", "retro-games"),
		ServerPort:  pkgconfig.EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    os.Getenv("LOG_LEVEL"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret:  []byte(os.Getenv("JWT_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTokenTTL:   pkgconfig.EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  pkgconfig.EnvDurationDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		KafkaBrokers: pkgconfig.CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    pkgconfig.EnvDefault("ES_INDEX", "games"),

		RedisURL:           os.Getenv("REDIS_URL"),
		ValidateRateLimit:  pkgconfig.EnvIntDefault("VALIDATE_RATE_LIMIT", 60),
		ValidateRateWindow: pkgconfig.EnvDurationDefault("VALIDATE_RATE_WINDOW", time.Minute),

		SubscriptionPeriod: pkgconfig.EnvDurationDefault("SUBSCRIPTION_PERIOD", 30*24*time.Hour),
		CORSOrigins:        pkgconfig.CSV(os.Getenv("CORS_ORIGINS")),
		CSRFEnabled:        pkgconfig.EnvBoolDefault("CSRF_ENABLED", true),
		CookieSecure:       pkgconfig.EnvBoolDefault("COOKIE_SECURE", true),
	}
}

func (c Config) Validate() error {
	if err := pkgconfig.RequireNonEmpty(c.DatabaseURL, "DATABASE_URL"); err != nil {
		return err
	}
	if err := pkgconfig.RequireNonEmpty(string(c.JWTAccessSecret), "JWT_SECRET"); err != nil {
		return err
	}
	if err := pkgconfig.RequireNonEmpty(string(c.JWTRefreshSecret), "JWT_REFRESH_SECRET"); err != nil {
		return err
	}
	if c.ValidateRateLimit < 1 {
		return fmt.Errorf("VALIDATE_RATE_LIMIT must be positive")
	}
	return nil
}

func InitDB(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := pkgdb.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

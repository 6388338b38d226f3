package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config carries every tunable of the tracker service. Values come from the
// environment, optionally seeded by a .env file in the working directory.
type Config struct {
	ServerAddr string `mapstructure:"SERVER_ADDR"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	DBTimezone string `mapstructure:"DB_TIMEZONE"`

	// SnapshotBackend selects where in-flight sessions and widget hand-off
	// values live: "sqlite" (on-device file) or "redis".
	SnapshotBackend string `mapstructure:"SNAPSHOT_BACKEND"`
	SnapshotPath    string `mapstructure:"SNAPSHOT_PATH"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisPrefix     string `mapstructure:"REDIS_PREFIX"`

	AccuracyThresholdM float64       `mapstructure:"ACCURACY_THRESHOLD_M"`
	CheckpointEvery    int           `mapstructure:"CHECKPOINT_EVERY"`
	SnapshotMaxAge     time.Duration `mapstructure:"SNAPSHOT_MAX_AGE"`
	DefaultGoalSteps   int           `mapstructure:"DEFAULT_GOAL_STEPS"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`
	// DeviceKeyHash is the bcrypt hash of the key companion devices present
	// to obtain a token. Empty disables token issuance.
	DeviceKeyHash string `mapstructure:"DEVICE_KEY_HASH"`
	CORSOrigins   string `mapstructure:"CORS_ORIGINS"`

	LogFile   string `mapstructure:"LOG_FILE"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogStdout bool   `mapstructure:"LOG_STDOUT"`
}

var defaults = map[string]any{
	"SERVER_ADDR":          "0.0.0.0:8080",
	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER":              "postgres",
	"DB_PASSWORD":          "password",
	"DB_NAME":              "walks",
	"DB_SSLMODE":           "disable",
	"DB_TIMEZONE":          "UTC",
	"SNAPSHOT_BACKEND":     "sqlite",
	"SNAPSHOT_PATH":        "./data/session.db",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_PREFIX":         "walk:",
	"ACCURACY_THRESHOLD_M": 20.0,
	"CHECKPOINT_EVERY":     10,
	"SNAPSHOT_MAX_AGE":     "72h",
	"DEFAULT_GOAL_STEPS":   5000,
	"JWT_SECRET":           "supersecret",
	"TOKEN_TTL":            "72h",
	"DEVICE_KEY_HASH":      "",
	"CORS_ORIGINS":         "*",
	"LOG_FILE":             "./logs/app.log",
	"LOG_LEVEL":            "debug",
	"LOG_STDOUT":           false,
}

// Load reads .env (if present) and the process environment into a Config.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on env vars")
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logrus.WithError(err).Warn("config: unmarshal failed, falling back to defaults")
	}
	return cfg
}

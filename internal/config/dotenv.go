package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	HandSize                 int
	MaxPlayers               int
	MinPlayers               int
	DefaultTotalRounds       int
	DisconnectGraceSeconds   int
	GenerationTimeoutSeconds int
	ResponseCardBuffer       int
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	SecretKey                string
	GeminiAPIKey             string
	GeminiModel              string
	GeminiBaseURL            string
}

func Default() Config {
	return Config{
		HandSize:                 7,
		MaxPlayers:               10,
		MinPlayers:               2,
		DefaultTotalRounds:       5,
		DisconnectGraceSeconds:   30,
		GenerationTimeoutSeconds: 30,
		ResponseCardBuffer:       100,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		SecretKey:                "dev-secret-change-me",
		GeminiModel:              "gemini-2.0-flash",
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("HAND_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.HandSize = value
		}
	}
	if raw := os.Getenv("MAX_PLAYERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 1 {
			cfg.MaxPlayers = value
		}
	}
	if raw := os.Getenv("MIN_PLAYERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 1 {
			cfg.MinPlayers = value
		}
	}
	if raw := os.Getenv("DEFAULT_TOTAL_ROUNDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DefaultTotalRounds = value
		}
	}
	if raw := os.Getenv("DISCONNECT_GRACE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DisconnectGraceSeconds = value
		}
	}
	if raw := os.Getenv("GENERATION_TIMEOUT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GenerationTimeoutSeconds = value
		}
	}
	if raw := os.Getenv("RESPONSE_CARD_BUFFER"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.ResponseCardBuffer = value
		}
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	if raw := os.Getenv("SECRET_KEY"); raw != "" {
		cfg.SecretKey = raw
	}
	if raw := os.Getenv("GEMINI_API_KEY"); raw != "" {
		cfg.GeminiAPIKey = raw
	}
	if raw := os.Getenv("GEMINI_MODEL"); raw != "" {
		cfg.GeminiModel = raw
	}
	if raw := os.Getenv("GEMINI_BASE_URL"); raw != "" {
		cfg.GeminiBaseURL = raw
	}
	return cfg
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Blockchain BlockchainConfig
	Settlement SettlementConfig
	Callback   CallbackConfig
	Queue      QueueConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
}

// BlockchainConfig holds chain access and sync parameters
type BlockchainConfig struct {
	RPCURL                string
	ChainName             string
	TokenContract         string
	TokenDecimals         int
	TokenType             string
	OperatorPrivateKey    string
	StartBlock            int64
	SyncInterval          time.Duration
	SyncWindow            int64
	RequiredConfirmations int64
	ConfirmRecheckDelay   time.Duration
	ConfirmSweepInterval  time.Duration
	// DepositTolerance is the accepted relative deviation between a deposit
	// and the order amount, as a fraction (0.01 = 1%).
	DepositTolerance decimal.Decimal
}

// SettlementConfig holds settlement engine parameters
type SettlementConfig struct {
	SweepInterval  time.Duration
	ExpiryInterval time.Duration
}

// CallbackConfig holds merchant notification parameters
type CallbackConfig struct {
	Timeout       time.Duration
	SweepInterval time.Duration
	// RetrySchedule is the delay before each delivery attempt, as a
	// comma-separated list of seconds.
	RetrySchedule []time.Duration
}

// QueueConfig holds job queue parameters
type QueueConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "settlegate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Blockchain: BlockchainConfig{
			RPCURL:                getEnv("CHAIN_RPC_URL", "https://sepolia.base.org"),
			ChainName:             getEnv("CHAIN_NAME", "base-sepolia"),
			TokenContract:         getEnv("TOKEN_CONTRACT", ""),
			TokenDecimals:         getEnvAsInt("TOKEN_DECIMALS", 6),
			TokenType:             getEnv("TOKEN_TYPE", "USDT"),
			OperatorPrivateKey:    getEnv("OPERATOR_PRIVATE_KEY", ""),
			StartBlock:            int64(getEnvAsInt("SYNC_START_BLOCK", 0)),
			SyncInterval:          getEnvAsDuration("SYNC_INTERVAL", 15*time.Second),
			SyncWindow:            int64(getEnvAsInt("SYNC_WINDOW", 100)),
			RequiredConfirmations: int64(getEnvAsInt("REQUIRED_CONFIRMATIONS", 12)),
			ConfirmRecheckDelay:   getEnvAsDuration("CONFIRM_RECHECK_DELAY", 15*time.Second),
			ConfirmSweepInterval:  getEnvAsDuration("CONFIRM_SWEEP_INTERVAL", time.Minute),
			DepositTolerance:      getEnvAsDecimal("DEPOSIT_TOLERANCE", "0.01"),
		},
		Settlement: SettlementConfig{
			SweepInterval:  getEnvAsDuration("SETTLEMENT_SWEEP_INTERVAL", time.Minute),
			ExpiryInterval: getEnvAsDuration("TOPUP_EXPIRY_INTERVAL", time.Minute),
		},
		Callback: CallbackConfig{
			Timeout:       getEnvAsDuration("CALLBACK_TIMEOUT", 30*time.Second),
			SweepInterval: getEnvAsDuration("CALLBACK_SWEEP_INTERVAL", time.Minute),
			RetrySchedule: getEnvAsSchedule("CALLBACK_RETRY_SCHEDULE", "0,60,120,240,480,960,1920"),
		},
		Queue: QueueConfig{
			Concurrency:  getEnvAsInt("QUEUE_CONCURRENCY", 4),
			PollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", 200*time.Millisecond),
			MaxAttempts:  getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffBase:  getEnvAsDuration("QUEUE_BACKOFF_BASE", 30*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}

// getEnvAsSchedule parses a comma-separated list of seconds.
func getEnvAsSchedule(key, defaultValue string) []time.Duration {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		secs, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		schedule = append(schedule, time.Duration(secs)*time.Second)
	}
	return schedule
}

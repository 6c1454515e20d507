/*
Package config loads service configuration from the environment.

PURPOSE:
  One place that knows every environment variable. A .env file is
  loaded if present (local development); real environment variables
  always win. Variable names mirror the deployment they replace, so
  existing secrets carry over unchanged.

VARIABLES:
  PORT                         HTTP port (default 8080)
  INITIAL_LOAN_DEBT            seed for the loan state (default 0)
  CRON_SECRET                  shared secret for /accrue-interest (empty = open)
  PAYMENT_BASIC_AUTH_USER      Basic-Auth user for /pay
  PAYMENT_BASIC_AUTH_PASSWORD  Basic-Auth password for /pay
  STORE_BACKEND                sqlite | redis | memory (default sqlite)
  SQLITE_PATH                  database file (default loan.db)
  REDIS_ADDR                   host:port (default localhost:6379)
  ACCRUAL_DAY                  day-of-month gate override (default 28)
  SCHEDULER_ENABLED            in-process accrual ticker (default true)
  SCHEDULER_INTERVAL           ticker interval (default 1h)
*/
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Backend names accepted in STORE_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds application configuration.
type Config struct {
	Port              string
	InitialDebt       decimal.Decimal
	CronSecret        string
	BasicAuthUser     string
	BasicAuthPassword string

	StoreBackend string
	SQLitePath   string
	RedisAddr    string

	AccrualDay        int
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// Load reads configuration from environment variables and a .env file
// if present.
func Load() (*Config, error) {
	// Attempt to load .env, ignore error if it doesn't exist.
	_ = godotenv.Load()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("INITIAL_LOAN_DEBT", "0")
	viper.SetDefault("CRON_SECRET", "")
	viper.SetDefault("PAYMENT_BASIC_AUTH_USER", "")
	viper.SetDefault("PAYMENT_BASIC_AUTH_PASSWORD", "")
	viper.SetDefault("STORE_BACKEND", BackendSQLite)
	viper.SetDefault("SQLITE_PATH", "loan.db")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("ACCRUAL_DAY", 28)
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("SCHEDULER_INTERVAL", "1h")

	viper.AutomaticEnv()

	cfg := &Config{
		Port:              viper.GetString("PORT"),
		CronSecret:        viper.GetString("CRON_SECRET"),
		BasicAuthUser:     viper.GetString("PAYMENT_BASIC_AUTH_USER"),
		BasicAuthPassword: viper.GetString("PAYMENT_BASIC_AUTH_PASSWORD"),
		StoreBackend:      viper.GetString("STORE_BACKEND"),
		SQLitePath:        viper.GetString("SQLITE_PATH"),
		RedisAddr:         viper.GetString("REDIS_ADDR"),
		AccrualDay:        viper.GetInt("ACCRUAL_DAY"),
		SchedulerEnabled:  viper.GetBool("SCHEDULER_ENABLED"),
	}

	debtStr := viper.GetString("INITIAL_LOAN_DEBT")
	debt, err := decimal.NewFromString(debtStr)
	if err != nil || debt.IsNegative() {
		return nil, fmt.Errorf("invalid INITIAL_LOAN_DEBT %q", debtStr)
	}
	cfg.InitialDebt = debt

	switch cfg.StoreBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q (want sqlite, redis or memory)", cfg.StoreBackend)
	}

	if cfg.AccrualDay < 1 || cfg.AccrualDay > 28 {
		return nil, fmt.Errorf("invalid ACCRUAL_DAY %d (must be 1-28 so every month has it)", cfg.AccrualDay)
	}

	intervalStr := viper.GetString("SCHEDULER_INTERVAL")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil || interval <= 0 {
		interval = time.Hour
		if intervalStr != "" {
			log.Printf("Warning: invalid SCHEDULER_INTERVAL %q, defaulting to %s", intervalStr, interval)
		}
	}
	cfg.SchedulerInterval = interval

	if cfg.BasicAuthUser == "" || cfg.BasicAuthPassword == "" {
		log.Println("Warning: PAYMENT_BASIC_AUTH_USER/PASSWORD not set; /pay will reject all requests")
	}
	if cfg.CronSecret == "" {
		log.Println("Warning: CRON_SECRET not set; /accrue-interest is unauthenticated")
	}

	return cfg, nil
}

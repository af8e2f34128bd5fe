package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/backtesting/simulator"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	Strategy    StrategyConfig
	Data        DataConfig
	Batch       BatchConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Postgres    PostgresConfig
	ClickHouse  ClickHouseConfig
}

// StrategyConfig holds the default strategy parameters as read from the
// environment. Direction and exit policy are parsed by ToEngine.
type StrategyConfig struct {
	Direction           string
	InitialOrderSize    float64
	SafetyOrderSize     float64
	VolumeMultiplier    float64
	SafetyOrdersCount   int
	PriceStepPercent    float64
	PriceStepMultiplier float64
	TakeProfitPercent   float64
	InitialCash         float64
	ExitPolicy          string
	IsFutures           bool
	Leverage            float64
	CommissionRate      float64
	MarginBuffer        float64
}

// DataConfig selects where candles come from.
type DataConfig struct {
	Source string // file | redis | clickhouse
	File   string
	InstID string // e.g. BTC-USDT
	Bar    string // e.g. 1D, 1H, 5m
	Limit  int    // max candles fetched from redis/clickhouse, 0 = all
}

type BatchConfig struct {
	Concurrency int
}

type RedisConfig struct {
	Addr     string // empty disables redis
	Password string
	DB       int
	PoolSize int
}

type RabbitMQConfig struct {
	URL   string // empty disables the report queue
	Queue string
}

type PostgresConfig struct {
	DSN string // empty disables report persistence
}

type ClickHouseConfig struct {
	DSN   string
	Table string
}

// Load reads configuration from the environment, after loading the given
// .env files (or ./.env when none is given). Missing .env files are ignored.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	var errs []error
	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		Strategy: StrategyConfig{
			Direction:           getEnvOrDefault("STRATEGY_DIRECTION", "Long"),
			InitialOrderSize:    getEnvFloatOrDefault("STRATEGY_INITIAL_ORDER_SIZE", 100, &errs),
			SafetyOrderSize:     getEnvFloatOrDefault("STRATEGY_SAFETY_ORDER_SIZE", 100, &errs),
			VolumeMultiplier:    getEnvFloatOrDefault("STRATEGY_VOLUME_MULTIPLIER", 1, &errs),
			SafetyOrdersCount:   getEnvIntOrDefault("STRATEGY_SAFETY_ORDERS_COUNT", 20, &errs),
			PriceStepPercent:    getEnvFloatOrDefault("STRATEGY_PRICE_STEP_PERCENT", 2, &errs),
			PriceStepMultiplier: getEnvFloatOrDefault("STRATEGY_PRICE_STEP_MULTIPLIER", 1.1, &errs),
			TakeProfitPercent:   getEnvFloatOrDefault("STRATEGY_TAKE_PROFIT_PERCENT", 1, &errs),
			InitialCash:         getEnvFloatOrDefault("STRATEGY_INITIAL_CASH", 10000, &errs),
			ExitPolicy:          getEnvOrDefault("STRATEGY_EXIT_POLICY", string(simulator.FIFOPartial)),
			IsFutures:           getEnvBoolOrDefault("STRATEGY_IS_FUTURES", false, &errs),
			Leverage:            getEnvFloatOrDefault("STRATEGY_LEVERAGE", 1, &errs),
			CommissionRate:      getEnvFloatOrDefault("STRATEGY_COMMISSION_RATE", 0, &errs),
			MarginBuffer:        getEnvFloatOrDefault("STRATEGY_MARGIN_BUFFER", simulator.DefaultMarginBuffer, &errs),
		},
		Data: DataConfig{
			Source: getEnvOrDefault("DATA_SOURCE", "file"),
			File:   getEnvOrDefault("DATA_FILE", ""),
			InstID: getEnvOrDefault("DATA_INST_ID", "BTC-USDT"),
			Bar:    getEnvOrDefault("DATA_BAR", "1D"),
			Limit:  getEnvIntOrDefault("DATA_LIMIT", 0, &errs),
		},
		Batch: BatchConfig{
			Concurrency: getEnvIntOrDefault("BATCH_CONCURRENCY", 4, &errs),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0, &errs),
			PoolSize: getEnvIntOrDefault("REDIS_POOL_SIZE", 10, &errs),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   getEnvOrDefault("RABBITMQ_URL", ""),
			Queue: getEnvOrDefault("RABBITMQ_QUEUE", "backtest.reports"),
		},
		Postgres: PostgresConfig{
			DSN: getEnvOrDefault("POSTGRES_DSN", ""),
		},
		ClickHouse: ClickHouseConfig{
			DSN:   getEnvOrDefault("CLICKHOUSE_DSN", ""),
			Table: getEnvOrDefault("CLICKHOUSE_TABLE", "candles"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ToEngine converts the environment defaults into a validated engine config.
func (s StrategyConfig) ToEngine() (engine.StrategyConfig, error) {
	direction, err := value_objects.ParseDirection(s.Direction)
	if err != nil {
		return engine.StrategyConfig{}, fmt.Errorf("STRATEGY_DIRECTION: %w", err)
	}
	exitPolicy, err := simulator.ParseExitPolicyKind(s.ExitPolicy)
	if err != nil {
		return engine.StrategyConfig{}, fmt.Errorf("STRATEGY_EXIT_POLICY: %w", err)
	}

	cfg := engine.StrategyConfig{
		Direction:           direction,
		InitialOrderSize:    s.InitialOrderSize,
		SafetyOrderSize:     s.SafetyOrderSize,
		VolumeMultiplier:    s.VolumeMultiplier,
		SafetyOrdersCount:   s.SafetyOrdersCount,
		PriceStepPercent:    s.PriceStepPercent,
		PriceStepMultiplier: s.PriceStepMultiplier,
		TakeProfitPercent:   s.TakeProfitPercent,
		InitialCash:         s.InitialCash,
		ExitPolicy:          exitPolicy,
		IsFutures:           s.IsFutures,
		Leverage:            s.Leverage,
		CommissionRate:      s.CommissionRate,
		MarginBuffer:        s.MarginBuffer,
	}
	if err := cfg.Validate(); err != nil {
		return engine.StrategyConfig{}, err
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int, errs *[]error) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid integer value for %s: %q", key, value))
		return defaultValue
	}
	return intValue
}

func getEnvFloatOrDefault(key string, defaultValue float64, errs *[]error) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid float value for %s: %q", key, value))
		return defaultValue
	}
	return floatValue
}

func getEnvBoolOrDefault(key string, defaultValue bool, errs *[]error) bool {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid boolean value for %s: %q", key, value))
		return defaultValue
	}
	return boolValue
}

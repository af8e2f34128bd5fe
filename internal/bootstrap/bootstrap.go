// Package bootstrap connects the optional infrastructure named in the
// configuration and exposes it as candle sources and report sinks.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/internal/application"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/config"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/messaging"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/rabbitmq"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/storage/clickhouse"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/storage/postgres"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"go.uber.org/zap"
)

// Candle source names accepted in DATA_SOURCE.
const (
	SourceFile       = "file"
	SourceRedis      = "redis"
	SourceClickHouse = "clickhouse"
)

const reportTTL = 7 * 24 * time.Hour

// Infra holds the connections opened for one process. Nil fields were not
// configured.
type Infra struct {
	Redis      *messaging.RedisClient
	RabbitMQ   *rabbitmq.Connection
	Postgres   *postgres.Pool
	ClickHouse *clickhouse.Conn

	data   config.DataConfig
	chCfg  config.ClickHouseConfig
	sinks  []application.ReportSink
	logger *logger.Logger
}

// Connect opens every backend that has an address configured. On error the
// connections opened so far are closed.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	infra := &Infra{data: cfg.Data, chCfg: cfg.ClickHouse, logger: log}

	if err := infra.connect(ctx, cfg); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *Infra) connect(ctx context.Context, cfg *config.Config) error {
	if cfg.Redis.Addr != "" {
		client, err := messaging.NewRedisClient(ctx, cfg.Redis, i.logger)
		if err != nil {
			return err
		}
		i.Redis = client
		i.sinks = append(i.sinks, messaging.NewRedisReportPublisher(client, reportTTL, i.logger))
	}

	if cfg.RabbitMQ.URL != "" {
		conn := rabbitmq.NewConnection(rabbitmq.Config{URL: cfg.RabbitMQ.URL}, i.logger)
		if err := conn.Connect(); err != nil {
			return err
		}
		i.RabbitMQ = conn
		i.sinks = append(i.sinks, rabbitmq.NewReportProducer(conn, cfg.RabbitMQ.Queue))
	}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		i.Postgres = pool
		store := postgres.NewReportStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		i.sinks = append(i.sinks, store)
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return err
		}
		i.ClickHouse = conn
	}

	i.logger.Info("Infrastructure ready",
		zap.Bool("redis", i.Redis != nil),
		zap.Bool("rabbitmq", i.RabbitMQ != nil),
		zap.Bool("postgres", i.Postgres != nil),
		zap.Bool("clickhouse", i.ClickHouse != nil),
	)
	return nil
}

// Sinks returns the report sinks of every configured backend.
func (i *Infra) Sinks() []application.ReportSink {
	return i.sinks
}

// Source builds the configured candle source for one market. For the file
// source instID and bar are informational only.
func (i *Infra) Source(instID, bar string) (loader.Source, error) {
	switch i.data.Source {
	case SourceFile:
		if i.data.File == "" {
			return nil, errors.New("DATA_FILE is required for the file source")
		}
		return loader.NewCandleLoader(i.data.File), nil
	case SourceRedis:
		if i.Redis == nil {
			return nil, errors.New("redis source selected but REDIS_ADDR is empty")
		}
		return messaging.NewCandleHistoryReader(i.Redis, instID, bar, i.data.Limit, i.logger), nil
	case SourceClickHouse:
		if i.ClickHouse == nil {
			return nil, errors.New("clickhouse source selected but CLICKHOUSE_DSN is empty")
		}
		return clickhouse.NewCandleSource(i.ClickHouse, i.chCfg.Table, instID, bar, i.data.Limit)
	default:
		return nil, fmt.Errorf("unknown data source %q", i.data.Source)
	}
}

// Close closes every open connection.
func (i *Infra) Close() {
	if i.RabbitMQ != nil {
		_ = i.RabbitMQ.Close()
	}
	if i.Postgres != nil {
		i.Postgres.Close()
	}
	if i.ClickHouse != nil {
		if err := i.ClickHouse.Close(); err != nil {
			i.logger.Error("Failed to close ClickHouse connection", err)
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.logger.Error("Failed to close Redis connection", err)
		}
	}
}

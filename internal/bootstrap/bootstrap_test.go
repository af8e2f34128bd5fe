package bootstrap

import (
	"context"
	"testing"

	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/config"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_NothingConfigured(t *testing.T) {
	cfg := &config.Config{Data: config.DataConfig{Source: SourceFile, File: "candles.csv"}}

	infra, err := Connect(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	defer infra.Close()

	assert.Empty(t, infra.Sinks())
	assert.Nil(t, infra.Redis)

	source, err := infra.Source("BTC-USDT", "1D")
	require.NoError(t, err)
	assert.IsType(t, &loader.CandleLoader{}, source)
}

func TestSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    config.DataConfig
		wantErr string
	}{
		{name: "file without path", data: config.DataConfig{Source: SourceFile}, wantErr: "DATA_FILE"},
		{name: "redis not configured", data: config.DataConfig{Source: SourceRedis}, wantErr: "REDIS_ADDR"},
		{name: "clickhouse not configured", data: config.DataConfig{Source: SourceClickHouse}, wantErr: "CLICKHOUSE_DSN"},
		{name: "unknown", data: config.DataConfig{Source: "kafka"}, wantErr: "unknown data source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			infra := &Infra{data: tt.data, logger: logger.NewNopLogger()}
			_, err := infra.Source("BTC-USDT", "1D")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConnect_UnreachableRedisFails(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:1", PoolSize: 1}}

	_, err := Connect(context.Background(), cfg, logger.NewNopLogger())
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

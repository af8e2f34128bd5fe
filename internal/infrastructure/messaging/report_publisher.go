package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/internal/application"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"go.uber.org/zap"
)

const (
	// ChannelPatternReports is the Pub/Sub channel per job.
	ChannelPatternReports = "backtest.reports.%s"
	// KeyPatternLatestReport holds the most recent report of a job.
	KeyPatternLatestReport = "backtest.latest.%s"
)

// RedisReportPublisher implements application.ReportSink: it publishes every
// run on a Pub/Sub channel and keeps the latest one under a key.
type RedisReportPublisher struct {
	client *RedisClient
	logger *logger.Logger
	ttl    time.Duration
}

var _ application.ReportSink = (*RedisReportPublisher)(nil)

// NewRedisReportPublisher creates a publisher. ttl 0 keeps the latest key forever.
func NewRedisReportPublisher(client *RedisClient, ttl time.Duration, log *logger.Logger) *RedisReportPublisher {
	return &RedisReportPublisher{
		client: client,
		logger: log,
		ttl:    ttl,
	}
}

// Publish implements application.ReportSink.
func (p *RedisReportPublisher) Publish(ctx context.Context, record application.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	channel := fmt.Sprintf(ChannelPatternReports, record.Job)
	key := fmt.Sprintf(KeyPatternLatestReport, record.Job)

	pipe := p.client.Client().TxPipeline()
	pipe.Set(ctx, key, data, p.ttl)
	pipe.Publish(ctx, channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish report to channel %s: %w", channel, err)
	}

	p.logger.Info("Report published",
		zap.String("channel", channel),
		zap.String("runId", record.RunID),
		zap.Float64("finalCash", record.Report.FinalCash),
	)
	return nil
}

// Latest reads the most recent report of job.
func (p *RedisReportPublisher) Latest(ctx context.Context, job string) (application.RunRecord, error) {
	key := fmt.Sprintf(KeyPatternLatestReport, job)
	val, err := p.client.Client().Get(ctx, key).Bytes()
	if err != nil {
		return application.RunRecord{}, fmt.Errorf("failed to get report from Redis (key: %s): %w", key, err)
	}

	var record application.RunRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return application.RunRecord{}, fmt.Errorf("failed to parse report JSON: %w", err)
	}
	return record, nil
}

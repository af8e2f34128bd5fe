package rabbitmq

import (
	"context"

	"dizzycode.xyz/dca-backtest/internal/application"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReportProducer implements application.ReportSink by queueing every run.
type ReportProducer struct {
	conn  *Connection
	queue string
}

var _ application.ReportSink = (*ReportProducer)(nil)

// NewReportProducer creates a producer for queue.
func NewReportProducer(conn *Connection, queue string) *ReportProducer {
	return &ReportProducer{conn: conn, queue: queue}
}

// Publish implements application.ReportSink.
func (p *ReportProducer) Publish(ctx context.Context, record application.RunRecord) error {
	opts := DefaultPublishOptions()
	opts.Headers = amqp.Table{
		"run_id": record.RunID,
		"job":    record.Job,
	}
	return PublishToQueue(ctx, p.conn, p.queue, record, &opts)
}

package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

// Config holds RabbitMQ connection configuration
type Config struct {
	URL string
}

// QueueOptions represents queue declaration options
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DefaultQueueOptions returns default queue options
func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		Durable:    true,
		AutoDelete: false,
		Exclusive:  false,
		NoWait:     false,
		Args:       nil,
	}
}

// PublishOptions represents message publishing options
type PublishOptions struct {
	Persistent   bool
	Priority     uint8
	Expiration   string
	Headers      amqp.Table
	QueueOptions *QueueOptions
}

// DefaultPublishOptions returns default publish options
func DefaultPublishOptions() PublishOptions {
	queueOpts := DefaultQueueOptions()
	return PublishOptions{
		Persistent:   true,
		QueueOptions: &queueOpts,
	}
}

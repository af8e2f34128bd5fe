package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PublishToQueue publishes payload as JSON to a queue on the default exchange
func PublishToQueue(
	ctx context.Context,
	conn *Connection,
	queue string,
	payload any,
	options *PublishOptions,
) error {
	channel, err := conn.GetChannel()
	if err != nil {
		return err
	}

	log := conn.GetLogger()

	// Use default options if not provided
	if options == nil {
		defaultOpts := DefaultPublishOptions()
		options = &defaultOpts
	}
	if options.QueueOptions == nil {
		defaultQueueOpts := DefaultQueueOptions()
		options.QueueOptions = &defaultQueueOpts
	}

	// Assert queue
	_, err = channel.QueueDeclare(
		queue,
		options.QueueOptions.Durable,
		options.QueueOptions.AutoDelete,
		options.QueueOptions.Exclusive,
		options.QueueOptions.NoWait,
		options.QueueOptions.Args,
	)
	if err != nil {
		log.Error("Failed to declare queue", err, zap.String("queue", queue))
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	message, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		newPublishing(message, options),
	)
	if err != nil {
		log.Error("Failed to publish message to queue", err, zap.String("queue", queue))
		return fmt.Errorf("failed to publish message to queue %s: %w", queue, err)
	}

	log.Debug("Message published to queue",
		zap.String("queue", queue),
		zap.Int("payloadSize", len(message)),
	)
	return nil
}

func newPublishing(body []byte, options *PublishOptions) amqp.Publishing {
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Priority:     options.Priority,
		Headers:      options.Headers,
	}
	if options.Persistent {
		publishing.DeliveryMode = amqp.Persistent
	}
	if options.Expiration != "" {
		publishing.Expiration = options.Expiration
	}
	return publishing
}

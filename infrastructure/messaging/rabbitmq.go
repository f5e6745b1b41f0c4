package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitMQ publishes to and consumes from one topic exchange.
type RabbitMQ struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	url      string
	exchange string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewRabbitMQ(url, exchange string) *RabbitMQ {
	return &RabbitMQ{url: url, exchange: exchange}
}

// Connect establishes connection to RabbitMQ
func (r *RabbitMQ) Connect() error {
	conn, err := amqp091.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		r.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.conn = conn
	r.channel = ch

	log.Printf("✅ Connected to RabbitMQ (exchange %s)", r.exchange)
	return nil
}

// Publish publishes an event to the exchange
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, eventData []byte) error {
	if r.channel == nil {
		return fmt.Errorf("RabbitMQ channel not initialized")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.channel.PublishWithContext(
		ctx,
		r.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         eventData,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	log.Printf("📤 Published: %s", routingKey)
	return nil
}

// Subscribe declares a durable queue named after the consumer, binds it to
// every key and processes deliveries with handler. A failed delivery is
// requeued once and dropped if it fails again.
func (r *RabbitMQ) Subscribe(consumer string, keys []string, handler EventHandler) error {
	if r.channel == nil {
		return fmt.Errorf("RabbitMQ channel not initialized")
	}

	queue, err := r.channel.QueueDeclare(
		consumer, // name
		true,     // durable
		false,    // delete when unused
		false,    // exclusive
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range keys {
		if err := r.channel.QueueBind(queue.Name, key, r.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	prev := r.cancel
	r.cancel = func() {
		if prev != nil {
			prev()
		}
		cancel()
	}
	r.mu.Unlock()

	msgs, err := r.channel.ConsumeWithContext(
		ctx,
		queue.Name, // queue
		consumer,   // consumer tag
		false,      // auto-ack (manual ack for reliability)
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	go func() {
		log.Printf("👂 %s subscribed to %v", consumer, keys)

		for msg := range msgs {
			if err := handler(ctx, msg.Body); err != nil {
				log.Printf("❌ %s failed on %s: %v", consumer, msg.RoutingKey, err)
				msg.Nack(false, !msg.Redelivered)
				continue
			}
			msg.Ack(false)
		}
	}()

	return nil
}

// Close stops consumers and closes the RabbitMQ connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"honest-report-service/enrichment"
	"honest-report-service/metrics"
)

// Subscriber consumes enrichment jobs from a durable queue and feeds them to
// an enrichment worker. Retries within a job are the worker's business; a job
// is acked once the worker returns, success or not, so a permanently broken
// job cannot wedge the queue.
type Subscriber struct {
	amqpURL  string
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

// NewSubscriber connects, declares the exchange and queue and binds them,
// failing fast if the broker is unreachable.
func NewSubscriber(amqpURL, exchange, queue string) (*Subscriber, error) {
	s := &Subscriber{
		amqpURL:  amqpURL,
		exchange: exchange,
		queue:    queue,
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Subscriber) connect() error {
	conn, err := amqp.Dial(s.amqpURL)
	if err != nil {
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(s.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("declare exchange %q: %w", s.exchange, err)
	}

	q, err := ch.QueueDeclare(s.queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("declare queue %q: %w", s.queue, err)
	}

	if err := ch.QueueBind(q.Name, s.queue, s.exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("bind queue %q: %w", s.queue, err)
	}

	s.conn = conn
	s.channel = ch
	metrics.RabbitMQConnected.Set(1)
	return nil
}

// Run consumes jobs until the context is cancelled, reconnecting with a
// fixed delay when the broker drops the connection.
func (s *Subscriber) Run(ctx context.Context, worker *enrichment.Worker, prefetch int) {
	if prefetch <= 0 {
		prefetch = 4
	}

	for {
		if err := s.consume(ctx, worker, prefetch); err != nil {
			log.WithError(err).Warnf("rabbitmq: consumer stopped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		if err := s.connect(); err != nil {
			log.WithError(err).Warnf("rabbitmq: reconnect failed")
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, worker *enrichment.Worker, prefetch int) error {
	if s.channel == nil {
		return fmt.Errorf("no channel")
	}
	if err := s.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := s.channel.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", s.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				metrics.RabbitMQConnected.Set(0)
				return fmt.Errorf("delivery channel closed")
			}

			var job enrichment.Job
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				log.WithError(err).Errorf("rabbitmq: dropping malformed job")
				_ = delivery.Nack(false, false)
				continue
			}

			metrics.EnrichmentInFlight.Inc()
			if err := worker.Process(ctx, job); err != nil {
				log.WithError(err).Warnf("rabbitmq: enrichment failed for report %d", job.ReportID)
				metrics.EnrichmentJobsTotal.WithLabelValues("failed").Inc()
			} else {
				metrics.EnrichmentJobsTotal.WithLabelValues("success").Inc()
			}
			metrics.EnrichmentInFlight.Dec()

			if err := delivery.Ack(false); err != nil {
				log.WithError(err).Warnf("rabbitmq: ack failed for report %d", job.ReportID)
			}
		}
	}
}

// Close closes the channel and connection.
func (s *Subscriber) Close() error {
	var err error
	if s.channel != nil {
		if cerr := s.channel.Close(); cerr != nil {
			err = cerr
		}
		s.channel = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.conn = nil
	}
	metrics.RabbitMQConnected.Set(0)
	return err
}

// Package queue carries jobs and results over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// ErrDeliveriesClosed is returned by Consume when the broker closes the delivery channel
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// JobHandler runs a single job
type JobHandler interface {
	Handle(ctx context.Context, job domain.Job) domain.Result
}

// Channel is the subset of *amqp.Channel used by the service
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Config holds queue names and consumer settings
type Config struct {
	JobQueue    string
	ResultQueue string
	Prefetch    int
	Concurrency int64
}

// RabbitMQService publishes jobs and consumes them, publishing a result for each
type RabbitMQService struct {
	conn    *amqp.Connection
	channel Channel
	config  Config
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewRabbitMQService connects to RabbitMQ and declares the job and result queues
func NewRabbitMQService(url string, config Config, logger *zap.Logger) (*RabbitMQService, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	r, err := NewWithChannel(ch, config, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

// NewWithChannel builds the service on an already open channel
func NewWithChannel(ch Channel, config Config, logger *zap.Logger) (*RabbitMQService, error) {
	if config.Prefetch <= 0 {
		config.Prefetch = 1
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	// quorum queues survive broker restarts
	for _, name := range []string{config.JobQueue, config.ResultQueue} {
		if name == "" {
			continue
		}
		_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
			"x-queue-type": "quorum",
		})
		if err != nil {
			return nil, err
		}
	}

	return &RabbitMQService{
		channel: ch,
		config:  config,
		logger:  logger.With(zap.String("component", "rabbitmq")),
	}, nil
}

// Close closes the channel and the connection
func (r *RabbitMQService) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

// Publish sends job to the job queue. Its result is published to replyTo when set,
// otherwise to the result queue.
func (r *RabbitMQService) Publish(ctx context.Context, job domain.Job, replyTo string) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.publish(ctx, r.config.JobQueue, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: job.ID,
		ReplyTo:       replyTo,
		Body:          body,
	})
}

func (r *RabbitMQService) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel.PublishWithContext(ctx, "", key, false, false, msg)
}

// Consume handles jobs from the job queue until ctx is cancelled or the broker closes the
// channel. At most Concurrency jobs run at once; each delivery is acked once its result has
// been published. Consume waits for running jobs before it returns.
func (r *RabbitMQService) Consume(ctx context.Context, handler JobHandler) error {
	if err := r.channel.Qos(r.config.Prefetch, 0, false); err != nil {
		return err
	}
	msgs, err := r.channel.Consume(r.config.JobQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(r.config.Concurrency)
	defer func() {
		// wait for in-flight jobs
		_ = sem.Acquire(context.Background(), r.config.Concurrency)
	}()

	r.logger.Info("waiting for jobs", zap.String("queue", r.config.JobQueue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				// not acked, the broker redelivers it
				return err
			}
			go func(d amqp.Delivery) {
				defer sem.Release(1)
				r.handleDelivery(ctx, handler, d)
			}(msg)
		}
	}
}

func (r *RabbitMQService) handleDelivery(ctx context.Context, handler JobHandler, d amqp.Delivery) {
	var res domain.Result
	var job domain.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		r.logger.Warn("invalid job document", zap.Error(err))
		res = domain.Result{
			ID:        d.CorrelationId,
			Status:    domain.StatusError,
			Error:     "invalid job document: " + err.Error(),
			ErrorType: domain.KindValidation,
		}
	} else {
		if job.ID == "" {
			job.ID = d.CorrelationId
		}
		res = handler.Handle(ctx, job)
	}

	if err := r.publishResult(ctx, d, res); err != nil {
		r.logger.Error("failed to publish result", zap.String("job_id", res.ID), zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			r.logger.Error("failed to nack delivery", zap.Error(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		r.logger.Error("failed to ack delivery", zap.String("job_id", res.ID), zap.Error(err))
	}
}

func (r *RabbitMQService) publishResult(ctx context.Context, d amqp.Delivery, res domain.Result) error {
	key := d.ReplyTo
	if key == "" {
		key = r.config.ResultQueue
	}
	if key == "" {
		r.logger.Debug("no result queue configured, dropping result", zap.String("job_id", res.ID))
		return nil
	}

	body, err := json.Marshal(res)
	if err != nil {
		return err
	}
	// results must go out even when the consumer is shutting down
	return r.publish(context.WithoutCancel(ctx), key, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: res.ID,
		Body:          body,
	})
}

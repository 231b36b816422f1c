package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Loom/internal/domain"
)

// AMQPQueue — реализация TaskQueue поверх RabbitMQ.
//
// Немедленные задачи публикуются в tasks.ready; отложенные — в
// tasks.delay с per-message TTL, откуда DLX возвращает их в
// tasks.ready по истечении задержки.
type AMQPQueue struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAMQPQueue создаёт очередь поверх установленного соединения.
func NewAMQPQueue(conn *Connection, logger *slog.Logger) *AMQPQueue {
	return &AMQPQueue{conn: conn, logger: logger}
}

// Enqueue публикует task, откладывая доставку до notBefore.
func (q *AMQPQueue) Enqueue(ctx context.Context, task *domain.Task, notBefore time.Time) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	ch := q.conn.Channel()
	if ch == nil {
		return ErrNoChannel
	}

	delay := time.Duration(0)
	if !notBefore.IsZero() {
		delay = clampDelay(time.Until(notBefore))
	}

	routingKey := routingReady
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
		MessageId:    task.ID.String(),
		Timestamp:    task.CreatedAt,
		Body:         body,
	}

	if delay > 0 {
		routingKey = routingDelay
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := ch.PublishWithContext(ctx, exchangeTasks, routingKey, false, false, pub); err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchangeTasks, routingKey, err)
	}

	q.logger.Debug("task enqueued",
		"task_id", task.ID,
		"doc_id", task.DocID,
		"node_index", task.NodeIndex,
		"attempt", task.Attempt,
		"delay", delay,
	)

	return nil
}

// amqpAcker реализует Acker поверх сырой AMQP доставки.
//
// Nack с задержкой не возвращает сообщение через брокер (у брокера
// нет per-redelivery задержки): вместо этого task публикуется заново
// в delay-очередь, а оригинал подтверждается.
//
// Повторные вызовы после первого Ack/Nack — no-op, чтобы обработчик
// и потребитель не конфликтовали за одно подтверждение.
type amqpAcker struct {
	raw   amqp.Delivery
	queue *AMQPQueue
	task  domain.Task
	done  bool
}

func (a *amqpAcker) Ack() error {
	if a.done {
		return nil
	}
	a.done = true
	return a.raw.Ack(false)
}

func (a *amqpAcker) Nack(retryAfter time.Duration) error {
	if a.done {
		return nil
	}
	a.done = true

	if retryAfter <= 0 {
		return a.raw.Nack(false, true)
	}

	notBefore := time.Now().Add(clampDelay(retryAfter))
	if err := a.queue.Enqueue(context.Background(), &a.task, notBefore); err != nil {
		// Публикация не удалась — возвращаем через брокер без задержки,
		// иначе сообщение потеряется
		return a.raw.Nack(false, true)
	}
	return a.raw.Ack(false)
}

// AMQPConsumer потребляет доставки из tasks.ready.
type AMQPConsumer struct {
	conn     *Connection
	queue    *AMQPQueue
	logger   *slog.Logger
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация потребителя.
type ConsumerConfig struct {
	// Handler — обработчик доставок.
	Handler Handler

	// Prefetch — количество неподтверждённых сообщений на потребителя.
	Prefetch int
}

// NewAMQPConsumer создаёт потребителя очереди задач.
func NewAMQPConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *AMQPConsumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &AMQPConsumer{
		conn:     conn,
		queue:    NewAMQPQueue(conn, logger),
		logger:   logger,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start запускает потребление до отмены ctx.
func (c *AMQPConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to start consuming", "queue", QueueTasksReady, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}

		c.logger.Info("consumer started", "queue", QueueTasksReady)

		if err := c.drain(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", QueueTasksReady)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *AMQPConsumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(QueueTasksReady, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// drain обрабатывает сообщения до закрытия канала доставки.
func (c *AMQPConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *AMQPConsumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var task domain.Task
	if err := json.Unmarshal(raw.Body, &task); err != nil {
		c.logger.Error("failed to unmarshal task",
			"queue", QueueTasksReady,
			"error", err,
		)
		// Некорректное сообщение — в DLQ
		raw.Nack(false, false)
		return
	}

	d := NewDelivery(task, &amqpAcker{raw: raw, queue: c.queue, task: task})

	if err := c.handler(ctx, d); err != nil {
		c.logger.Error("handler failed",
			"queue", QueueTasksReady,
			"task_id", task.ID,
			"doc_id", task.DocID,
			"error", err,
		)
		// Инфраструктурный сбой — вернуть в очередь для redelivery
		d.Nack(0)
		return
	}

	// Обработчик решил исход; если он не подтвердил сам — подтверждаем
	d.Ack()
}

// Stop останавливает потребителя.
func (c *AMQPConsumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

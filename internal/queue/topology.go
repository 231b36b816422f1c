package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена элементов топологии.
const (
	exchangeTasks = "loom.tasks"
	exchangeDLQ   = "loom.dlq"

	// QueueTasksReady — очередь задач, готовых к доставке координатору.
	QueueTasksReady = "tasks.ready"

	// queueTasksDelay — парковка отложенных задач: сообщение лежит до
	// истечения per-message TTL, после чего DLX возвращает его в
	// tasks.ready. Так реализуется not_before без внешнего планировщика.
	queueTasksDelay = "tasks.delay"

	// QueueDLQ — сообщения, которые не удалось распарсить или которые
	// отвергнуты обработчиком как неисправимые.
	QueueDLQ = "dlq.tasks"

	routingReady = "ready"
	routingDelay = "delay"
	routingDLQ   = "tasks"
)

// SetupTopology объявляет обменники, очереди и привязки.
//
// Идемпотентна: повторное объявление с теми же параметрами безопасно,
// поэтому её выполняет каждый стартующий процесс.
func SetupTopology(conn *Connection) error {
	ch := conn.Channel()
	if ch == nil {
		return ErrNoChannel
	}

	exchanges := []string{exchangeTasks, exchangeDLQ}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	queues := []struct {
		name string
		args amqp.Table
	}{
		// tasks.ready — основная очередь; отвергнутые сообщения уходят в DLQ
		{QueueTasksReady, amqp.Table{
			"x-dead-letter-exchange":    exchangeDLQ,
			"x-dead-letter-routing-key": routingDLQ,
		}},

		// tasks.delay — сообщения с TTL возвращаются в tasks.ready
		{queueTasksDelay, amqp.Table{
			"x-dead-letter-exchange":    exchangeTasks,
			"x-dead-letter-routing-key": routingReady,
		}},

		// dlq.tasks — ручной разбор
		{QueueDLQ, nil},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	bindings := []struct {
		queue, key, exchange string
	}{
		{QueueTasksReady, routingReady, exchangeTasks},
		{queueTasksDelay, routingDelay, exchangeTasks},
		{QueueDLQ, routingDLQ, exchangeDLQ},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

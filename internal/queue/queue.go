package queue

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

// Ошибки очереди.
var (
	// ErrQueueClosed — очередь закрыта.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull — буфер внутрипроцессной очереди исчерпан.
	ErrQueueFull = errors.New("queue buffer full")

	// ErrNoChannel — нет доступного AMQP канала.
	ErrNoChannel = errors.New("no channel available")
)

// MaxDelay — максимальная задержка redelivery, которую обязана
// выдерживать реализация очереди. Совпадает с пределом, который
// валидация политик retry навязывает при регистрации.
const MaxDelay = domain.MaxRetryDelay

// TaskQueue — адаптер внешней очереди задач.
//
// Движок полагается только на эти примитивы и считает доставку
// at-least-once без гарантии порядка между разными tasks.
// Подтверждение (ack) и возврат с задержкой (nack) живут на
// стороне доставки (Delivery).
type TaskQueue interface {
	// Enqueue публикует task. Ненулевое notBefore откладывает
	// доставку до указанного времени (с точностью очереди).
	Enqueue(ctx context.Context, task *domain.Task, notBefore time.Time) error
}

// Acker — подтверждение или возврат одной доставки.
type Acker interface {
	// Ack подтверждает успешную обработку.
	Ack() error

	// Nack возвращает сообщение в очередь с задержкой повторной
	// доставки. retryAfter <= 0 — вернуть сразу.
	Nack(retryAfter time.Duration) error
}

// Delivery — доставленный task с примитивами подтверждения.
type Delivery struct {
	// Task — распарсенное сообщение.
	Task domain.Task

	acker Acker
}

// NewDelivery создаёт доставку. Используется реализациями очереди.
func NewDelivery(task domain.Task, acker Acker) *Delivery {
	return &Delivery{Task: task, acker: acker}
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.acker.Ack()
}

// Nack возвращает сообщение для повторной доставки.
func (d *Delivery) Nack(retryAfter time.Duration) error {
	return d.acker.Nack(retryAfter)
}

// Handler — обработчик доставки.
//
// Возврат nil означает, что исход решён и сообщение подтверждается;
// ошибка — инфраструктурный сбой, сообщение вернётся в очередь.
type Handler func(ctx context.Context, d *Delivery) error

// Consumer — источник доставок из очереди.
type Consumer interface {
	// Start блокируется и передаёт доставки в handler до отмены ctx.
	Start(ctx context.Context) error

	// Stop останавливает потребление.
	Stop()
}

// clampDelay ограничивает задержку пределом MaxDelay.
func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

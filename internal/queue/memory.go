package queue

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

// MemoryQueue — внутрипроцессная реализация TaskQueue.
//
// Используется в тестах и в однопроцессном режиме без брокера.
// Сохраняет семантику внешней очереди: at-least-once (nack возвращает
// сообщение), отсутствие порядка между отложенными задачами,
// доставка не раньше notBefore.
type MemoryQueue struct {
	mu      sync.Mutex
	ch      chan domain.Task
	pending sync.WaitGroup // невыполненные отложенные публикации
	closed  bool
}

// NewMemoryQueue создаёт очередь с буфером size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan domain.Task, size)}
}

// Enqueue публикует task, откладывая появление в очереди до notBefore.
// Полный буфер — ErrQueueFull: публикация не блокируется, потерянную
// постановку восстановит polling fallback.
func (q *MemoryQueue) Enqueue(ctx context.Context, task *domain.Task, notBefore time.Time) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	delay := time.Duration(0)
	if !notBefore.IsZero() {
		delay = clampDelay(time.Until(notBefore))
	}

	t := *task
	if delay <= 0 {
		// Публикация вне критической секции: блокировка на буфере под
		// mu заклинила бы Close
		q.mu.Unlock()
		return q.publish(t)
	}

	q.pending.Add(1)
	q.mu.Unlock()

	time.AfterFunc(delay, func() {
		defer q.pending.Done()
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		// Ошибку переполнения некому вернуть; задачу вернёт polling
		// fallback
		q.publish(t)
	})

	return nil
}

// publish кладёт задачу в буфер без блокировки.
func (q *MemoryQueue) publish(t domain.Task) error {
	select {
	case q.ch <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue снимает одну задачу; блокируется до появления задачи или
// отмены ctx. Второй результат false при отмене.
func (q *MemoryQueue) Dequeue(ctx context.Context) (domain.Task, bool) {
	select {
	case <-ctx.Done():
		return domain.Task{}, false
	case t := <-q.ch:
		return t, true
	}
}

// TryDequeue снимает задачу без блокировки.
func (q *MemoryQueue) TryDequeue() (domain.Task, bool) {
	select {
	case t := <-q.ch:
		return t, true
	default:
		return domain.Task{}, false
	}
}

// Len возвращает число задач, доступных к доставке прямо сейчас.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close закрывает очередь; отложенные публикации отбрасываются.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.pending.Wait()
}

// memoryAcker реализует Acker для внутрипроцессной доставки.
type memoryAcker struct {
	queue *MemoryQueue
	task  domain.Task
	done  bool
}

func (a *memoryAcker) Ack() error {
	a.done = true
	return nil
}

func (a *memoryAcker) Nack(retryAfter time.Duration) error {
	if a.done {
		return nil
	}
	a.done = true
	return a.queue.Enqueue(context.Background(), &a.task, time.Now().Add(retryAfter))
}

// MemoryConsumer доставляет задачи из MemoryQueue в handler.
type MemoryConsumer struct {
	queue   *MemoryQueue
	handler Handler

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewMemoryConsumer создаёт потребителя внутрипроцессной очереди.
func NewMemoryConsumer(queue *MemoryQueue, handler Handler) *MemoryConsumer {
	return &MemoryConsumer{queue: queue, handler: handler}
}

// Start блокируется и передаёт доставки в handler до отмены ctx.
func (c *MemoryConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	c.wg.Add(1)
	defer c.wg.Done()

	for {
		task, ok := c.queue.Dequeue(ctx)
		if !ok {
			return ctx.Err()
		}

		d := NewDelivery(task, &memoryAcker{queue: c.queue, task: task})
		if err := c.handler(ctx, d); err != nil {
			// Инфраструктурный сбой — вернуть для redelivery
			d.Nack(0)
		}
	}
}

// Stop останавливает потребителя.
func (c *MemoryConsumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
}

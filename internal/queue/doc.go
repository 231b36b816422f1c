// Package queue — адаптер очереди задач.
//
// Движок видит очередь через узкий интерфейс: enqueue с отложенной
// доставкой, ack и nack-с-задержкой. Гарантии внешней очереди —
// at-least-once доставка без порядка между разными tasks; дубликаты
// и переупорядочение компенсирует координатор.
//
// Две реализации: AMQP (RabbitMQ; отложенная доставка через
// delay-очередь с per-message TTL и dead-letter маршрутизацией) и
// внутрипроцессная MemoryQueue для тестов и single-process режима.
package queue

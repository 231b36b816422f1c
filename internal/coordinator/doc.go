// Package coordinator — продвижение документов через pipelines.
//
// Координатор потребляет tasks из at-least-once очереди и для каждой
// доставки выполняет ровно один узел: рендерит инструкцию, вызывает
// action, коммитит новое состояние и ставит следующий task. Дубликаты
// и переупорядоченные доставки отбрасываются staleness guard по паре
// (cursor, attempt); конкурентные записи разрешает optimistic
// concurrency по revision.
//
// Решение по результату вызова принимает чистая функция Decide:
// продвижение, завершение, retry с backoff или терминальный отказ.
package coordinator

// Package dispatch — выполнение узлов pipeline.
//
// Диспетчер получает отрендеренную инструкцию узла и выполняет её
// через action соответствующего вида: вызов модели, чистое
// преобразование или запись в хранилище. Каждая ошибка вызова
// классифицируется как временная (повтор может пройти) или постоянная
// (повтор бессмыслен); решение о повторе принимает координатор.
//
// Каждый вызов несёт идемпотентный token (doc_id, узел, попытка),
// чтобы эффектные бэкенды могли дедуплицировать повторные доставки.
package dispatch

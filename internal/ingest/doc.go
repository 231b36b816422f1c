// Package ingest принимает батчи документов в pipelines.
//
// Приём одного документа:
//
//  1. Payload проверяется против ingestion-схемы версии pipeline
//     (обязательные поля присутствуют, protected поля не заданы)
//  2. Создаётся состояние прохождения (cursor=0, PENDING) с версией,
//     зафиксированной на момент приёма
//  3. Ставится task первого узла
//
// Состояние коммитится строго до постановки task: доставка без
// состояния была бы отброшена, а состояние без доставки подберёт
// polling fallback координатора.
//
// Документы батча независимы: отказ одного не откатывает остальные,
// по-документные итоги возвращаются в Receipt. Батч раскладывается
// по пулу воркеров (ants).
package ingest

// Package store — приёмник готовых документов.
//
// Store получает владение полями документа в двух случаях: при
// успешном завершении pipeline и при явном storage_write узле.
// Save идемпотентен по doc_id (upsert): очередь доставляет
// at-least-once, повторная запись перезаписывает ту же строку.
//
// Реализации:
//   - PostgresStore — таблица documents с JSONB полями
//   - MemoryStore — для тестов
package store

// Package registry — кэш определений pipelines и шаблонов.
//
// Определения версионируются и неизменяемы после записи, поэтому кэш
// не инвалидируется: пара (id, version) всегда указывает на одно и то
// же содержимое. Горячий путь обработки task читает определения
// отсюда, а не из БД.
package registry

// Package scheduler выполняет фоновое обслуживание движка.
//
// Единственная регулярная работа — архивация: терминальные состояния
// прохождения старше окна retention переносятся из рабочей таблицы в
// архивную по cron-расписанию (robfig/cron). Горячий путь координатора
// при этом читает и пишет только маленькую рабочую таблицу.
//
// Архивация идемпотентна: перенос выполняется в одной транзакции
// с ON CONFLICT DO NOTHING, повторный тик безопасен.
package scheduler

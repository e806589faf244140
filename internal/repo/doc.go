// Package repo — реализации порта персистентности истории запусков.
//
// PgHistory хранит записи в PostgreSQL (pgx), MemoryHistory — в
// памяти процесса (одноразовые запуски из CLI и тесты). Обе
// реализации удовлетворяют orchestrator.History.
package repo

// Package cli — команды conveyor.
//
// Структура:
//   - root.go     — корневая команда и общие флаги
//   - serve.go    — долгоживущий процесс: планировщик + /metrics
//   - run.go      — одноразовый запуск пайплайна
//   - validate.go — проверка директории определений
//   - list.go     — список пайплайнов
//   - output.go   — табличный/JSON вывод
package cli

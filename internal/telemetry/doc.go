// Package telemetry — логирование и метрики.
//
// Логирование построено на log/slog с конфигурацией через
// переменные окружения LOG_LEVEL и LOG_FORMAT. Метрики — prometheus,
// регистрация через promauto.
package telemetry

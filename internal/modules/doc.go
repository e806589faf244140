// Package modules — встроенные модули шагов.
//
// Каждый модуль реализует module.Module: shell — команда в рабочей
// директории запуска, http — запрос к внешнему API, json — выборка
// из результата предыдущего шага, fs — файловые операции внутри
// рабочей директории, s3 — объектное хранилище, queue — публикация
// в RabbitMQ. RegisterBuiltins регистрирует их в реестре.
package modules

// Package runctx собирает и владеет песочницей одного запуска:
// рабочая директория, слитое окружение, накопитель результатов,
// лог и токен отмены.
//
// RunContext принадлежит ровно одному запуску и никогда не
// разделяется между запусками.
package runctx

// Package engine превращает объявленный список шагов пайплайна
// в валидированный план выполнения.
//
// План — упорядоченный список стадий. Стадия — один шаг или
// параллельная группа, все зависимости которой удовлетворены
// предыдущими стадиями. План строится один раз на запуск и
// неизменяем после построения.
package engine

// Package orchestrator выполняет пайплайны.
//
// Orchestrator идёт по плану выполнения стадия за стадией: шаги
// стадии стартуют конкурентно, следующая стадия не начинается, пока
// все шаги текущей не достигли терминального состояния. Первая
// ошибка шага переводит run в fail — соседи по стадии в полёте
// дорабатывают, но новые стадии не стартуют. Явная остановка
// переводит run в cancelled, а не fail.
//
// Каждый переход записывается через Persistence Port (History)
// и публикуется в шину событий.
package orchestrator

// Package scheduler запускает пайплайны по расписанию.
//
// Scheduler тикает раз в минуту и для каждого пайплайна с
// незапаузенным расписанием проверяет, наступил ли момент запуска в
// пределах окна (70 секунд, чуть шире периода тика — дрожание тикера
// не теряет срабатываний). Повторные срабатывания того же момента
// гасятся множеством ключей (pipelineId, instant) с ограниченной
// ёмкостью и вытеснением старейших.
//
// Тики не накладываются: если предыдущий ещё идёт, очередной
// пропускается и считается в метрике.
package scheduler

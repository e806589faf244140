package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (пять полей, стандартный формат).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateExpr проверяет валидность cron-выражения.
func ValidateExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// MostRecent возвращает последний момент срабатывания выражения,
// попавший в полуинтервал (now-window, now].
//
// Второй результат false — в окне срабатываний не было.
func MostRecent(expr string, now time.Time, window time.Duration) (time.Time, bool, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	var due time.Time
	found := false

	// cron отдаёт только будущие моменты, поэтому идём от начала окна.
	t := now.Add(-window)
	for {
		next := sched.Next(t)
		if next.IsZero() || next.After(now) {
			break
		}
		due = next
		found = true
		t = next
	}
	return due, found, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/orchestrator"
)

// Output управляет форматированием вывода CLI.
// Данные идут в stdout (таблица или JSON), сообщения о ходе — в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Pipelines выводит список пайплайнов: таблицу с состоянием
// расписания или JSON-массив.
func (o *Output) Pipelines(pipelines []domain.Pipeline) {
	if o.jsonMode {
		o.JSON(pipelines)
		return
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tSCHEDULE")
	for i := range pipelines {
		p := &pipelines[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.ID, p.Name, strconv.Itoa(p.TotalSteps()), formatSchedule(p))
	}
	tw.Flush()
}

// formatSchedule — колонка SCHEDULE: "-" для ручных пайплайнов,
// cron-выражение с пометкой для приостановленных.
func formatSchedule(p *domain.Pipeline) string {
	if p.Schedule == "" {
		return "-"
	}
	if p.SchedulePaused {
		return p.Schedule + " (paused)"
	}
	return p.Schedule
}

// Outcome выводит итог одноразового запуска.
func (o *Output) Outcome(outcome *orchestrator.RunOutcome) {
	if o.jsonMode {
		o.JSON(outcome)
		return
	}

	status := "succeeded"
	if !outcome.Success {
		status = "failed"
	}
	fmt.Fprintf(o.errW, "run %s %s in %s\n",
		outcome.RunID, status, outcome.Duration.Round(time.Millisecond))
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Infof выводит строку о ходе выполнения в stderr.
func (o *Output) Infof(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}

// Errorf выводит строку об ошибке в stderr.
func (o *Output) Errorf(format string, args ...any) {
	fmt.Fprintf(o.errW, "Error: "+format+"\n", args...)
}

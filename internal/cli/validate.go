package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/modules"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// NewValidateCmd создаёт команду validate: полная проверка директории
// определений без запуска чего-либо.
func NewValidateCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate pipeline definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(opts)
		},
	}
}

// validate проверяет каждое определение: схему (при загрузке),
// разрешимость плана, известность модулей и cron-выражение.
func validate(opts *Options) error {
	logger := telemetry.SetupLogger()
	out := NewOutput(opts.JSON)

	if _, err := store.NewVariables(opts.Definitions, nil, logger); err != nil {
		return err
	}
	definitions, err := store.New(store.Config{Dir: opts.Definitions, Logger: logger})
	if err != nil {
		return err
	}

	registry := module.NewRegistry()
	modules.RegisterBuiltins(registry)

	pipelines, err := definitions.ListPipelines(context.Background())
	if err != nil {
		return err
	}

	failed := 0
	for i := range pipelines {
		p := &pipelines[i]

		var problems []string
		if _, err := engine.Resolve(p.Steps); err != nil {
			problems = append(problems, err.Error())
		}
		for _, item := range p.Steps {
			for _, step := range item.Steps() {
				if !registry.Has(step.Module) {
					problems = append(problems, fmt.Sprintf("step %q: unknown module %q", step.Name, step.Module))
				}
			}
		}
		if p.Schedule != "" {
			if err := scheduler.ValidateExpr(p.Schedule); err != nil {
				problems = append(problems, err.Error())
			}
		}

		if len(problems) == 0 {
			out.Infof("%s: ok", p.ID)
			continue
		}
		failed++
		for _, problem := range problems {
			out.Errorf("%s: %s", p.ID, problem)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pipelines invalid", failed, len(pipelines))
	}
	out.Infof("%d pipelines valid", len(pipelines))
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/bus"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/modules"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// NewRunCmd создаёт команду run: одноразовый запуск пайплайна.
func NewRunCmd(opts *Options) *cobra.Command {
	var inputs []string

	cmd := &cobra.Command{
		Use:   "run PIPELINE_ID",
		Short: "Run a pipeline once and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			return runOnce(opts, args[0], parsed)
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")

	return cmd
}

// parseInputs разбирает пары KEY=VALUE.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

func runOnce(opts *Options, pipelineID string, inputs map[string]any) error {
	// Ctrl-C отменяет запуск кооперативно, не убивая процесс.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := telemetry.SetupLogger()
	eventBus := bus.New(logger)

	// Строки лога запуска идут в stderr по мере выполнения.
	eventBus.Subscribe(func(e bus.Event) {
		if e.Kind != bus.KindLog {
			return
		}
		msg, _ := e.Payload["msg"].(string)
		fmt.Fprintf(os.Stderr, "%s %s\n", time.Now().UTC().Format(time.RFC3339), msg)
	})

	variables, err := store.NewVariables(opts.Definitions, nil, logger)
	if err != nil {
		return err
	}
	definitions, err := store.New(store.Config{Dir: opts.Definitions, Logger: logger})
	if err != nil {
		return err
	}

	registry := module.NewRegistry()
	modules.RegisterBuiltins(registry)
	registry.SetBus(eventBus)

	orch := orchestrator.New(orchestrator.Config{
		Source:  definitions,
		History: repo.NewMemoryHistory(),
		Loader:  registry,
		Builder: runctx.NewBuilder(runctx.Config{
			BaseDir: opts.WorkDir,
			Vars:    variables,
			Logger:  logger,
		}),
		Bus:    eventBus,
		Logger: logger,
	})

	outcome, err := orch.RunPipeline(ctx, pipelineID, inputs)
	if err != nil {
		return err
	}

	NewOutput(opts.JSON).Outcome(outcome)
	return nil
}

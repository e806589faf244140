package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// NewListCmd создаёт команду list: список пайплайнов директории.
func NewListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.SetupLogger()
			out := NewOutput(opts.JSON)

			definitions, err := store.New(store.Config{Dir: opts.Definitions, Logger: logger})
			if err != nil {
				return err
			}

			pipelines, err := definitions.ListPipelines(context.Background())
			if err != nil {
				return err
			}

			out.Pipelines(pipelines)
			return nil
		},
	}
}

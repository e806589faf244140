package cli

import (
	"github.com/spf13/cobra"
)

// Options — общие флаги всех команд.
type Options struct {
	// Definitions — директория с YAML-определениями пайплайнов.
	Definitions string

	// WorkDir — корень рабочих директорий запусков.
	WorkDir string

	// JSON — выводить данные в JSON.
	JSON bool
}

// NewRootCmd создаёт корневую команду conveyor.
func NewRootCmd(version string) *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — self-hosted pipeline runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.Definitions, "definitions", "pipelines", "Directory with pipeline definitions")
	rootCmd.PersistentFlags().StringVar(&opts.WorkDir, "workdir", "", "Base directory for run work dirs (default: system temp)")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		NewServeCmd(opts),
		NewRunCmd(opts),
		NewValidateCmd(opts),
		NewListCmd(opts),
	)

	return rootCmd
}

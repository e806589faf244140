package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/bus"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/modules"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// NewServeCmd создаёт команду serve: долгоживущий процесс с
// планировщиком, /healthz и /metrics.
func NewServeCmd(opts *Options) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts, port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "8080", "HTTP port for /healthz and /metrics")

	return cmd
}

func serve(opts *Options, port string) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := telemetry.SetupLogger()

	eventBus := bus.New(logger)

	variables, err := store.NewVariables(opts.Definitions, eventBus, logger)
	if err != nil {
		return err
	}
	definitions, err := store.New(store.Config{
		Dir:    opts.Definitions,
		Bus:    eventBus,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// История: PostgreSQL при заданном DB_URL, иначе в памяти.
	var history orchestrator.History
	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		history = repo.NewPgHistory(pool)
		logger.Info("run history in PostgreSQL")
	} else {
		history = repo.NewMemoryHistory()
		logger.Warn("DB_URL not set, run history kept in memory")
	}

	registry := module.NewRegistry()
	modules.RegisterBuiltins(registry)
	// Встроенные модули уже на месте: шина подключается после,
	// чтобы старт не рассылал modules:changed на каждый builtin.
	registry.SetBus(eventBus)

	orch := orchestrator.New(orchestrator.Config{
		Source:  definitions,
		History: history,
		Loader:  registry,
		Builder: runctx.NewBuilder(runctx.Config{
			BaseDir: opts.WorkDir,
			Vars:    variables,
			Logger:  logger,
		}),
		Bus:    eventBus,
		Logger: logger,
	})

	sched := scheduler.New(scheduler.Config{
		Source: definitions,
		Runner: orch,
		Logger: logger,
	})
	go sched.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("conveyor serving",
		"port", port,
		"definitions", opts.Definitions,
		"modules", registry.Names(),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

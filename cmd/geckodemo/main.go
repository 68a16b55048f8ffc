// Command geckodemo boots a gecko runtime, exercises every core service,
// and shuts back down. It exists to prove the assembled runtime actually
// runs end to end, the same role original_source's core_example plays for
// the reference engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"

	"gecko/internal/config"
	"gecko/internal/eventbus"
	"gecko/internal/hash"
	"gecko/internal/logging"
	"gecko/internal/profiler"
	"gecko/internal/profiler/tracesink"
	"gecko/internal/runtime"
	"gecko/internal/services"
)

var version = "dev"

func main() {
	logger := slog.New(logging.NewComponentFilterHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.LevelInfo,
	))

	rootCmd := &cobra.Command{
		Use:   "geckodemo",
		Short: "Boot a gecko runtime and exercise its core services",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the runtime, run the demo workload, then shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			workers, _ := cmd.Flags().GetInt("workers")
			tracePath, _ := cmd.Flags().GetString("trace-file")

			if name == "" {
				name = petname.Generate(2, "-")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, name, workers, tracePath)
		},
	}
	runCmd.Flags().String("name", "", "run name (default: a generated petname)")
	runCmd.Flags().Int("workers", 4, "job system worker count")
	runCmd.Flags().String("trace-file", "", "write a Chrome-trace JSON file here (optional)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, name string, workers int, tracePath string) error {
	cfg := config.Default(config.WithWorkerCount(workers))

	rt, err := runtime.Boot(cfg, logger)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	defer rt.Shutdown()

	rt.Logger.AddSink(consoleLogSink{logger: logger})
	rt.Profiler.AddSink(consoleProfSink{logger: logger})

	if tracePath != "" {
		sink, err := tracesink.NewTraceFileSink(tracePath)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer sink.Close()
		rt.Profiler.AddSink(sink)
	}

	logger.Info("run starting", "name", name, "boot_id", rt.BootID.String())

	runLabel := hash.NewLabel("geckodemo.run")
	scope := profiler.BeginScope(rt.Profiler, runLabel, 0)
	defer scope.End()

	rt.Allocator.PushLabel(runLabel)
	ptr, err := rt.Allocator.Alloc(4096, 16)
	if err != nil {
		return fmt.Errorf("alloc: %w", err)
	}
	rt.Allocator.PopLabel()

	runDemoJobs(rt, logger)
	runDemoEvents(rt, logger)

	if err := rt.Allocator.Free(ptr); err != nil {
		logger.Error("free failed", "error", err)
	}

	snap := rt.Allocator.Snapshot()
	logger.Info("allocator snapshot", "total_live", snap.TotalLive, "buckets", len(snap.Buckets))

	<-waitOrDone(ctx, 200*time.Millisecond)
	logger.Info("run complete", "name", name)
	return nil
}

// waitOrDone returns a channel that fires either when ctx is cancelled or
// after d, whichever comes first — a short grace window for the demo's
// background consumers to drain before Shutdown runs.
func waitOrDone(ctx context.Context, d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}()
	return ch
}

func runDemoJobs(rt *runtime.Runtime, logger *slog.Logger) {
	fetchLabel := hash.NewLabel("geckodemo.fetch")
	parseLabel := hash.NewLabel("geckodemo.parse")
	reportLabel := hash.NewLabel("geckodemo.report")

	fetch := rt.Jobs.Submit(func(ctx context.Context) error {
		rt.Logger.Log(services.LogInfo, fetchLabel, "fetch complete")
		return nil
	}, services.PriorityNormal, fetchLabel)

	parse := rt.Jobs.SubmitWithDeps(func(ctx context.Context) error {
		rt.Logger.Log(services.LogInfo, parseLabel, "parse complete")
		return nil
	}, []services.JobID{fetch}, services.PriorityNormal, parseLabel)

	report := rt.Jobs.SubmitWithDeps(func(ctx context.Context) error {
		rt.Logger.Log(services.LogInfo, reportLabel, "report complete")
		return nil
	}, []services.JobID{parse}, services.PriorityHigh, reportLabel)

	rt.Jobs.Wait(report)
	logger.Info("job chain finished", "fetch", fetch, "parse", parse, "report", report)
}

const demoModuleID = uint32(1)

type demoModule struct {
	bus    *eventbus.Bus
	logger *slog.Logger
	sub    *eventbus.Subscription
}

func (m *demoModule) Startup() bool {
	code := eventbus.NewEventCode(demoModuleID, 1)
	m.sub = m.bus.Subscribe(code, eventbus.OnPublish, func(code eventbus.EventCode, emitter eventbus.Emitter, payload []byte) {
		m.logger.Info("demo module observed event", "local_code", code.LocalCode(), "payload", string(payload))
	})
	return true
}

func (m *demoModule) Shutdown() error {
	m.sub.Unsubscribe()
	return nil
}

func runDemoEvents(rt *runtime.Runtime, logger *slog.Logger) {
	label := hash.NewLabel("geckodemo.module")
	handle, err := rt.Modules.RegisterStatic(label, &demoModule{bus: rt.Bus, logger: logger})
	if err != nil {
		logger.Error("register demo module failed", "error", err)
		return
	}
	defer handle.Close()

	emitter := rt.Bus.CreateEmitter(demoModuleID)
	code := eventbus.NewEventCode(demoModuleID, 1)
	if err := rt.Bus.PublishImmediate(emitter, code, []byte("hello from geckodemo")); err != nil {
		logger.Error("publish failed", "error", err)
	}
}

type consoleLogSink struct {
	logger *slog.Logger
}

func (s consoleLogSink) Write(entry services.LogEntry) error {
	s.logger.Log(context.Background(), slogLevel(entry.Level), entry.Text, "label", entry.Label.Name, "seq", entry.Sequence)
	return nil
}

func (s consoleLogSink) Flush() error { return nil }

func slogLevel(level services.LogLevel) slog.Level {
	switch level {
	case services.LogDebug:
		return slog.LevelDebug
	case services.LogWarn:
		return slog.LevelWarn
	case services.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type consoleProfSink struct {
	logger *slog.Logger
}

func (s consoleProfSink) Write(evt services.ProfEvent) error {
	s.logger.Debug("profiler event", "label", evt.Label.Name, "kind", evt.Kind)
	return nil
}

func (s consoleProfSink) WriteBatch(evts []services.ProfEvent) error {
	for _, evt := range evts {
		_ = s.Write(evt)
	}
	return nil
}

func (s consoleProfSink) Flush() error { return nil }

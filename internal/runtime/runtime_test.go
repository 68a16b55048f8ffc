package runtime

import (
	"context"
	"testing"

	"gecko/internal/config"
	"gecko/internal/hash"
	"gecko/internal/services"
)

func TestBootInstallsEveryServiceAndValidates(t *testing.T) {
	rt, err := Boot(config.Default(config.WithWorkerCount(2)), nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer rt.Shutdown()

	if !rt.Table.Validate(false) {
		t.Fatal("booted table should validate with every slot filled")
	}
	if rt.BootID.String() == "" {
		t.Fatal("boot id should be populated")
	}
}

func TestBootRejectsInvalidConfig(t *testing.T) {
	if _, err := Boot(config.Default(config.WithWorkerCount(0)), nil); err == nil {
		t.Fatal("Boot should reject an invalid config before constructing any service")
	}
}

type countingModule struct {
	started, stopped int
}

func (m *countingModule) Startup() bool   { m.started++; return true }
func (m *countingModule) Shutdown() error { m.stopped++; return nil }

func TestUserModuleRegisteredAfterBootStartsAndStopsAroundShutdown(t *testing.T) {
	rt, err := Boot(config.Default(config.WithWorkerCount(2)), nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	m := &countingModule{}
	label := hash.NewLabel("test.user_module")
	if _, err := rt.Modules.RegisterStatic(label, m); err != nil {
		t.Fatalf("RegisterStatic: %v", err)
	}
	if m.started != 1 {
		t.Fatalf("started = %d, want 1", m.started)
	}

	rt.Shutdown()
	if m.stopped != 1 {
		t.Fatalf("stopped = %d, want 1", m.stopped)
	}
}

func TestShutdownUninstallsServiceTable(t *testing.T) {
	rt, err := Boot(config.Default(config.WithWorkerCount(2)), nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	rt.Shutdown()

	if rt.Table.Validate(false) {
		t.Fatal("table should no longer validate after Shutdown uninstalls every slot")
	}
}

func TestJobsAndEventsWorkAfterBoot(t *testing.T) {
	rt, err := Boot(config.Default(config.WithWorkerCount(2)), nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer rt.Shutdown()

	label := hash.NewLabel("test.job")
	id := rt.Jobs.Submit(func(ctx context.Context) error { return nil }, services.PriorityNormal, label)
	rt.Jobs.Wait(id)

	code := rt.Bus.CreateEmitter(42)
	if got := code.ModuleID; got != 42 {
		t.Fatalf("emitter module id = %d, want 42", got)
	}
}

package modules

import (
	"testing"

	"gecko/internal/eventbus"
	"gecko/internal/hash"
)

type fakeModule struct {
	startupOK   bool
	startCalls  int
	stopCalls   int
	stopErr     error
}

func (m *fakeModule) Startup() bool {
	m.startCalls++
	return m.startupOK
}
func (m *fakeModule) Shutdown() error {
	m.stopCalls++
	return m.stopErr
}

func TestRegisterStaticBeforeBootDoesNotStart(t *testing.T) {
	r := New(nil, nil)
	m := &fakeModule{startupOK: true}
	if _, err := r.RegisterStatic(hash.NewLabel("a"), m); err != nil {
		t.Fatalf("RegisterStatic: %v", err)
	}
	if m.startCalls != 0 {
		t.Fatal("module should not start before StartupAll")
	}
}

func TestDuplicateLabelRejected(t *testing.T) {
	r := New(nil, nil)
	label := hash.NewLabel("a")
	if _, err := r.RegisterStatic(label, &fakeModule{startupOK: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterStatic(label, &fakeModule{startupOK: true}); err == nil {
		t.Fatal("duplicate label must be rejected")
	}
}

func TestInvalidLabelRejected(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.RegisterStatic(hash.Label{}, &fakeModule{startupOK: true}); err == nil {
		t.Fatal("zero-id label must be rejected")
	}
}

func TestStartupOrderMatchesRegistrationOrder(t *testing.T) {
	r := New(nil, nil)
	var order []string
	mk := func(name string) *fakeModule {
		return &fakeModule{startupOK: true}
	}
	labels := []string{"a", "b", "c"}
	mods := map[string]*fakeModule{}
	for _, n := range labels {
		m := mk(n)
		mods[n] = m
		if _, err := r.RegisterStatic(hash.NewLabel(n), orderTrackingModule{m, n, &order}); err != nil {
			t.Fatal(err)
		}
	}
	if !r.StartupAll() {
		t.Fatal("StartupAll should succeed when every module starts")
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("start order = %v, want [a b c]", order)
	}
}

// orderTrackingModule records its name into a shared slice on Startup, to
// observe ordering without timing-sensitive assertions.
type orderTrackingModule struct {
	inner *fakeModule
	name  string
	order *[]string
}

func (m orderTrackingModule) Startup() bool {
	*m.order = append(*m.order, m.name)
	return m.inner.Startup()
}
func (m orderTrackingModule) Shutdown() error { return m.inner.Shutdown() }

func TestShutdownAllRunsInReverseOrder(t *testing.T) {
	r := New(nil, nil)
	var order []string
	labels := []string{"a", "b", "c"}
	for _, n := range labels {
		shutdownTracker := &shutdownOrderModule{name: n, order: &order}
		if _, err := r.RegisterStatic(hash.NewLabel(n), shutdownTracker); err != nil {
			t.Fatal(err)
		}
	}
	if !r.StartupAll() {
		t.Fatal("StartupAll should succeed")
	}
	r.ShutdownAll()
	if len(order) != 3 || order[0] != "c" || order[1] != "b" || order[2] != "a" {
		t.Fatalf("shutdown order = %v, want [c b a]", order)
	}
}

type shutdownOrderModule struct {
	name  string
	order *[]string
}

func (m *shutdownOrderModule) Startup() bool { return true }
func (m *shutdownOrderModule) Shutdown() error {
	*m.order = append(*m.order, m.name)
	return nil
}

func TestStartupAllRollsBackOnPartialFailure(t *testing.T) {
	r := New(nil, nil)
	m1 := &fakeModule{startupOK: true}
	m2 := &fakeModule{startupOK: false}
	m3 := &fakeModule{startupOK: true}

	if _, err := r.RegisterStatic(hash.NewLabel("m1"), m1); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterStatic(hash.NewLabel("m2"), m2); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterStatic(hash.NewLabel("m3"), m3); err != nil {
		t.Fatal(err)
	}

	if r.StartupAll() {
		t.Fatal("StartupAll must return false when a module fails to start")
	}

	started := map[string]bool{}
	r.ForEachModule(func(label hash.Label, wasStarted bool) bool {
		started[label.Name] = wasStarted
		return true
	})
	for name, s := range started {
		if s {
			t.Errorf("module %s left started=true after rollback", name)
		}
	}
	// Only m1 started before m2 failed (startup stops there, so m3 is never
	// reached); m1 must have been shut down again as part of the rollback.
	if m1.stopCalls == 0 {
		t.Error("rollback must shut down every module started during this startup_all call")
	}
}

func TestRegisterAfterBootStartsImmediately(t *testing.T) {
	r := New(nil, nil)
	if !r.StartupAll() {
		t.Fatal("StartupAll on empty registry should succeed")
	}

	m := &fakeModule{startupOK: true}
	if _, err := r.RegisterStatic(hash.NewLabel("late"), m); err != nil {
		t.Fatal(err)
	}
	if m.startCalls != 1 {
		t.Fatal("module registered after boot should start immediately")
	}
}

func TestRegisterAfterBootFailureIsRemoved(t *testing.T) {
	r := New(nil, nil)
	if !r.StartupAll() {
		t.Fatal("StartupAll on empty registry should succeed")
	}

	m := &fakeModule{startupOK: false}
	label := hash.NewLabel("late")
	_, err := r.RegisterStatic(label, m)
	if err == nil {
		t.Fatal("registration after boot with a failing startup must return an error")
	}
	if _, ok := r.GetModule(label); ok {
		t.Fatal("a module that failed to start after boot must not remain registered")
	}
}

func TestCrossWiresEventBusRegistration(t *testing.T) {
	bus := eventbus.New()
	r := New(bus, nil)
	label := hash.NewLabel("netcode")

	handle, err := r.RegisterStatic(label, &fakeModule{startupOK: true})
	if err != nil {
		t.Fatal(err)
	}
	if bus.RegisterModule(uint32(label.ID)) {
		t.Fatal("registry should already have registered this module id with the bus")
	}

	if err := handle.Close(); err != nil {
		t.Fatal(err)
	}
	if !bus.RegisterModule(uint32(label.ID)) {
		t.Fatal("unregistering the module should free its id on the event bus")
	}
}

func TestHandleReleaseDetachesOwnership(t *testing.T) {
	r := New(nil, nil)
	label := hash.NewLabel("permanent")
	m := &fakeModule{startupOK: true}
	handle, err := r.RegisterStatic(label, m)
	if err != nil {
		t.Fatal(err)
	}
	handle.Release()
	if err := handle.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetModule(label); !ok {
		t.Fatal("a released handle's Close must not unregister the module")
	}
}

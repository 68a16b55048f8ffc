package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gecko/internal/services"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := Default(WithWorkerCount(16), WithProfilerRingCapacity(8192))
	if c.WorkerCount != 16 {
		t.Errorf("WorkerCount = %d, want 16", c.WorkerCount)
	}
	if c.ProfilerRingCapacity != 8192 {
		t.Errorf("ProfilerRingCapacity = %d, want 8192", c.ProfilerRingCapacity)
	}
}

func TestValidateRejectsNonPositiveWorkerCount(t *testing.T) {
	c := Default(WithWorkerCount(0))
	if err := c.Validate(); err == nil {
		t.Fatal("zero worker count should fail validation")
	}
}

func TestValidateRejectsMinAboveMax(t *testing.T) {
	c := Default()
	c.ProfilerMaxLevel = services.LevelAlways
	c.MinProfilerLevel = services.LevelDetailed
	if err := c.Validate(); err == nil {
		t.Fatal("min level above build-time max level should fail validation")
	}
}

type spyProfiler struct {
	services.Profiler
	level services.ProfLevel
}

func (s *spyProfiler) SetMinLevel(level services.ProfLevel) { s.level = level }

func TestWatcherAppliesProfilerLevelOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.conf")
	if err := os.WriteFile(path, []byte("profiler_min_level=0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	spy := &spyProfiler{}
	w, err := NewWatcher(path, spy, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	if spy.level != services.LevelAlways {
		t.Fatalf("initial apply: level = %v, want LevelAlways", spy.level)
	}

	if err := os.WriteFile(path, []byte("profiler_min_level=2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if spy.level == services.LevelDetailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("level after reload = %v, want LevelDetailed", spy.level)
}

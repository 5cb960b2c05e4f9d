package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/devrigerr"
)

func fastPolicy(mode config.RestartPolicy) Policy {
	return Policy{
		Mode:               mode,
		MaxRestarts:        100,
		StartupMaxRestarts: 100,
		StartupGrace:       50 * time.Millisecond,
		InitialDelay:       time.Millisecond,
		MaxDelay:           time.Millisecond,
	}
}

func TestPolicyFromConfigDefaults(t *testing.T) {
	p := PolicyFromConfig(config.RestartConfig{})
	if p.Mode != config.RestartOnFailure {
		t.Errorf("default policy = %s, want on-failure", p.Mode)
	}
	if p.MaxRestarts != 10 || p.StartupMaxRestarts != 3 {
		t.Errorf("default budgets = %d/%d, want 10/3", p.MaxRestarts, p.StartupMaxRestarts)
	}
	if p.StartupGrace != 2*time.Second || p.InitialDelay != 500*time.Millisecond || p.MaxDelay != 30*time.Second {
		t.Errorf("default timings wrong: %+v", p)
	}
}

func TestBackoffDelayWithinEqualJitterBounds(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		base := float64(p.InitialDelay) * float64(int64(1)<<uint(min(attempt, 30)))
		capped := base
		if capped > float64(p.MaxDelay) {
			capped = float64(p.MaxDelay)
		}
		for i := 0; i < 20; i++ {
			d := backoffDelay(p, attempt)
			if float64(d) < capped/2 || float64(d) > capped {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, time.Duration(capped/2), time.Duration(capped))
			}
		}
	}
}

func TestRunNeverPolicyDoesNotRestart(t *testing.T) {
	s := New("once", "exit 3", t.TempDir(), nil, fastPolicy(config.RestartNever), nil)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.Phase(); got != PhaseStopped {
		t.Errorf("Phase() = %s, want stopped", got)
	}
}

func TestRunOnFailureCleanExitDoesNotRestart(t *testing.T) {
	s := New("clean", "exit 0", t.TempDir(), nil, fastPolicy(config.RestartOnFailure), nil)
	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("a clean exit should return promptly, took %v", elapsed)
	}
	if got := s.Phase(); got != PhaseStopped {
		t.Errorf("Phase() = %s, want stopped", got)
	}
}

func TestRunRapidCrashLoopTrips(t *testing.T) {
	s := New("crashy", "exit 1", t.TempDir(), nil, fastPolicy(config.RestartAlways), nil)
	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected a failure from the crash-rate breaker")
	}
	var failed *devrigerr.SupervisorFailed
	if !errors.As(err, &failed) {
		t.Fatalf("expected *SupervisorFailed, got %T: %v", err, err)
	}
	if failed.Kind != devrigerr.RapidCrashLoop {
		t.Errorf("Kind = %s, want rapid crash loop", failed.Kind)
	}
	if got := s.Phase(); got != PhaseFailed {
		t.Errorf("Phase() = %s, want failed", got)
	}
}

func TestRunCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New("sleepy", "sleep 30", t.TempDir(), nil, fastPolicy(config.RestartAlways), nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		var cancelled *devrigerr.Cancelled
		if !errors.As(err, &cancelled) {
			t.Fatalf("expected *Cancelled, got %T: %v", err, err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
	if got := s.Phase(); got != PhaseStopped {
		t.Errorf("Phase() = %s, want stopped", got)
	}
}

func TestLogLinesArePublished(t *testing.T) {
	logs := make(chan LogLine, 16)
	s := New("talker", "echo hello; echo oops >&2", t.TempDir(), nil, fastPolicy(config.RestartNever), logs)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(logs)

	var stdout, stderr int
	for line := range logs {
		if line.Service != "talker" {
			t.Errorf("line.Service = %q, want talker", line.Service)
		}
		if line.Stderr {
			stderr++
		} else {
			stdout++
		}
	}
	if stdout != 1 || stderr != 1 {
		t.Errorf("got %d stdout / %d stderr lines, want 1/1", stdout, stderr)
	}
}

func TestDetectLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"ERROR: database gone":        slog.LevelError,
		"panic: nil pointer":          slog.LevelError,
		"warn: retrying":              slog.LevelWarn,
		"DEBUG starting up":           slog.LevelDebug,
		"listening on :8080":          slog.LevelInfo,
	}
	for line, want := range cases {
		if got := DetectLevel(line); got != want {
			t.Errorf("DetectLevel(%q) = %v, want %v", line, got, want)
		}
	}
}

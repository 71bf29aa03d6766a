package launcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/capture"
	"github.com/loykin/appctl/internal/registry"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func newLauncher(t *testing.T) (*Launcher, *registry.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	st, err := registry.Open(path)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	l := &Launcher{
		Store:        st,
		RegistryPath: path,
		GraceWindow:  200 * time.Millisecond,
		StopWait:     2 * time.Second,
		// /bin/true stands in for the sidecar so tests do not re-exec
		// the test binary.
		ExecPath: "/bin/true",
	}
	return l, st
}

// script writes an executable shell script and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func TestLaunchRegistersRunningRecord(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	ctx := context.Background()

	h, err := l.Launch(ctx, script(t, "sleep 5"), nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	rec, err := st.Get(ctx, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != registry.StatusRunning || rec.PID <= 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := l.Stop(ctx, h); err != nil {
		t.Fatalf("cleanup stop: %v", err)
	}
}

func TestLaunchTwiceYieldsIndependentHandles(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	ctx := context.Background()
	app := script(t, "sleep 5")

	h1, err := l.Launch(ctx, app, nil)
	if err != nil {
		t.Fatalf("launch 1: %v", err)
	}
	h2, err := l.Launch(ctx, app, nil)
	if err != nil {
		t.Fatalf("launch 2: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("handles not distinct")
	}
	if err := l.Stop(ctx, h1); err != nil {
		t.Fatalf("stop h1: %v", err)
	}
	rec2, _ := st.Get(ctx, h2)
	if rec2.Status != registry.StatusRunning {
		t.Fatalf("stopping h1 affected h2: %+v", rec2)
	}
	if err := l.Stop(ctx, h2); err != nil {
		t.Fatalf("stop h2: %v", err)
	}
}

func TestLaunchMissingPathFails(t *testing.T) {
	l, _ := newLauncher(t)
	_, err := l.Launch(context.Background(), "/no/such/app", nil)
	if !apperr.Is(err, apperr.LaunchFailed) {
		t.Fatalf("expected launch_failed, got %v", err)
	}
}

func TestLaunchNonExecutableFails(t *testing.T) {
	requireUnix(t)
	l, _ := newLauncher(t)
	p := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(p, []byte("not a program"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := l.Launch(context.Background(), p, nil)
	if !apperr.Is(err, apperr.LaunchFailed) {
		t.Fatalf("expected launch_failed, got %v", err)
	}
}

func TestImmediateCrashStillRegistersHandle(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	ctx := context.Background()

	h, err := l.Launch(ctx, script(t, "exit 3"), nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	rec, err := st.Get(ctx, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != registry.StatusUnreachable {
		t.Fatalf("immediate crash not detected: %+v", rec)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	ctx := context.Background()

	h, err := l.Launch(ctx, script(t, "sleep 5"), nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := l.Stop(ctx, h); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := l.Stop(ctx, h); err != nil {
		t.Fatalf("second stop must succeed: %v", err)
	}
	rec, _ := st.Get(ctx, h)
	if rec.Status != registry.StatusStopped {
		t.Fatalf("status after double stop: %s", rec.Status)
	}
}

func TestStopEscalatesWhenSigtermIgnored(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	l.StopWait = 300 * time.Millisecond
	ctx := context.Background()

	h, err := l.Launch(ctx, script(t, "trap '' TERM\nwhile :; do :; done"), nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	start := time.Now()
	if err := l.Stop(ctx, h); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("stop took too long: %v", elapsed)
	}
	rec, _ := st.Get(ctx, h)
	if rec.Status != registry.StatusStopped {
		t.Fatalf("status after forced stop: %s", rec.Status)
	}
	if capture.Alive(rec.PID) {
		t.Fatalf("process survived SIGKILL escalation")
	}
}

func TestStopExternallyKilledMarksUnreachable(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	ctx := context.Background()

	h, err := l.Launch(ctx, script(t, "sleep 30"), nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	rec, _ := st.Get(ctx, h)
	killGroup(rec.PID)
	if !waitGone(rec.PID, 2*time.Second) {
		t.Fatalf("kill did not take effect")
	}
	if err := l.Stop(ctx, h); err != nil {
		t.Fatalf("stop after external kill must succeed: %v", err)
	}
	rec, _ = st.Get(ctx, h)
	if rec.Status != registry.StatusUnreachable {
		t.Fatalf("expected unreachable, got %s", rec.Status)
	}
}

func TestStopUnknownHandle(t *testing.T) {
	l, _ := newLauncher(t)
	err := l.Stop(context.Background(), "bogus")
	if !apperr.Is(err, apperr.InvalidArguments) {
		t.Fatalf("expected invalid_arguments, got %v", err)
	}
}

func TestAttachToRunningProcess(t *testing.T) {
	requireUnix(t)
	l, st := newLauncher(t)
	ctx := context.Background()

	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}()

	h, err := l.Attach(ctx, cmd.Process.Pid)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	rec, err := st.Get(ctx, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Attached || rec.LaunchPath != "" || rec.PID != cmd.Process.Pid {
		t.Fatalf("unexpected attached record: %+v", rec)
	}
}

func TestAttachToDeadPidFails(t *testing.T) {
	requireUnix(t)
	l, _ := newLauncher(t)
	cmd := exec.Command("sleep", "0.05")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Wait()

	_, err := l.Attach(context.Background(), pid)
	if err == nil {
		if capture.Alive(pid) {
			t.Skip("pid recycled by the host")
		}
		t.Fatalf("expected attach to dead pid to fail")
	}
	if !apperr.Is(err, apperr.ProcessUnreachable) {
		t.Fatalf("expected process_unreachable, got %v", err)
	}
}

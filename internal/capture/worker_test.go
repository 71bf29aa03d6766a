package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loykin/appctl/internal/registry"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sleep on Unix-like systems")
	}
}

func openTemp(t *testing.T) *registry.Store {
	t.Helper()
	s, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkerDrainsInOrderAndMarksUnreachable(t *testing.T) {
	requireUnix(t)
	st := openTemp(t)
	ctx := context.Background()

	cmd := exec.Command("sleep", "0.3")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	pid := cmd.Process.Pid

	h := registry.NewHandle()
	err := st.Insert(ctx, registry.Record{
		Handle: h, PID: pid, StartedAt: time.Now(), Status: registry.StatusRunning,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	outR, outW, _ := os.Pipe()
	errR, errW, _ := os.Pipe()
	w := &Worker{
		Store: st, Handle: h, PID: pid,
		Stdout: outR, Stderr: errR,
		SampleInterval: 50 * time.Millisecond,
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		if _, err := fmt.Fprintf(outW, "out-%d\n", i); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := fmt.Fprintln(errW, "boom"); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()
	_ = cmd.Wait() // reap so the pid stops reporting as a zombie

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not finish after target exit")
	}

	lines, err := st.Logs(ctx, h, 0)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d: %+v", len(lines), lines)
	}
	seen := 0
	for _, l := range lines {
		if l.Stream != StreamStdout {
			continue
		}
		if l.Line != fmt.Sprintf("out-%d", seen) {
			t.Fatalf("stdout order broken: got %q want out-%d", l.Line, seen)
		}
		seen++
	}
	if seen != 5 {
		t.Fatalf("lost stdout lines: %d", seen)
	}

	rec, err := st.Get(ctx, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != registry.StatusUnreachable {
		t.Fatalf("expected unreachable after unsupervised exit, got %s", rec.Status)
	}
}

func TestWorkerRespectsExplicitStop(t *testing.T) {
	requireUnix(t)
	st := openTemp(t)
	ctx := context.Background()

	cmd := exec.Command("sleep", "0.2")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	pid := cmd.Process.Pid

	h := registry.NewHandle()
	_ = st.Insert(ctx, registry.Record{
		Handle: h, PID: pid, StartedAt: time.Now(), Status: registry.StatusRunning,
	})

	// Simulate stop_app having already won the status race.
	if _, err := st.SetStatus(ctx, h, registry.StatusStopped); err != nil {
		t.Fatalf("set stopped: %v", err)
	}

	outR, outW, _ := os.Pipe()
	w := &Worker{Store: st, Handle: h, PID: pid, Stdout: outR, SampleInterval: 50 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_ = outW.Close()
	_ = cmd.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not finish")
	}

	rec, _ := st.Get(ctx, h)
	if rec.Status != registry.StatusStopped {
		t.Fatalf("final update clobbered stopped status: %s", rec.Status)
	}
}

func TestSampleProcessReportsUnreachableForDeadPid(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sleep", "0.05")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Wait()
	// The reaped pid must not produce a sample.
	if _, err := SampleProcess(context.Background(), pid); err == nil {
		if Alive(pid) {
			t.Skip("pid recycled by the host")
		}
		t.Fatalf("expected error sampling dead pid")
	}
}

func TestSampleProcessLivePid(t *testing.T) {
	smp, err := SampleProcess(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("sample self: %v", err)
	}
	if smp.Timestamp.IsZero() {
		t.Fatalf("sample missing timestamp")
	}
	if smp.MemoryRSS == 0 {
		t.Fatalf("expected nonzero RSS for a live process")
	}
}

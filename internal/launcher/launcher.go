// Package launcher creates and tears down managed applications. It is the
// only component that starts new background activity: every launch spawns the
// target detached from the invocation and a capture sidecar bound to the
// target's lifetime.
package launcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/capture"
	"github.com/loykin/appctl/internal/registry"
)

// Launcher spawns, attaches to, and stops managed applications.
type Launcher struct {
	Store        *registry.Store
	RegistryPath string

	GraceWindow    time.Duration // watch for an immediate crash after launch
	StopWait       time.Duration // graceful-termination wait before SIGKILL
	SampleInterval time.Duration
	MetricsAddr    string
	AppLogDir      string

	// ExecPath overrides the sidecar executable; empty means self.
	ExecPath string

	Log *slog.Logger
}

func (l *Launcher) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

// Launch starts path with args as a detached child, registers a record, and
// spawns the capture sidecar. An immediate crash inside the grace window
// still registers the handle but marks it unreachable so the caller can tell.
//
// Known limitation: if the record cannot be persisted after a successful
// spawn, the orphaned child is left running. Killing it here could race with
// another invocation that already learned the handle.
func (l *Launcher) Launch(ctx context.Context, path string, args []string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", apperr.Wrap(apperr.LaunchFailed, err, "app path does not exist: %s", path)
	}
	if info.IsDir() || !executable(info) {
		return "", apperr.New(apperr.LaunchFailed, "not an executable file: %s", path)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return "", apperr.Wrap(apperr.LaunchFailed, err, "stdout pipe")
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return "", apperr.Wrap(apperr.LaunchFailed, err, "stderr pipe")
	}

	// #nosec G204 -- launching the operator-supplied target is the point
	cmd := exec.Command(path, args...)
	cmd.Stdin = nil
	cmd.Stdout = outW
	cmd.Stderr = errW
	detachAttrs(cmd)
	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW)
		return "", apperr.Wrap(apperr.LaunchFailed, err, "failed to launch %s", path)
	}
	pid := cmd.Process.Pid
	// The write ends now belong to the target; keeping them open here would
	// defeat EOF detection in the sidecar.
	closeAll(outW, errW)

	handle := registry.NewHandle()
	rec := registry.Record{
		Handle:     handle,
		PID:        pid,
		LaunchPath: path,
		LaunchArgs: args,
		StartedAt:  time.Now().UTC(),
		Status:     registry.StatusRunning,
	}
	if err := l.Store.Insert(ctx, rec); err != nil {
		closeAll(outR, errR)
		l.logger().Error("record not persisted, child left running",
			"pid", pid, "path", path, "error", err)
		return "", err
	}

	if err := l.spawnSidecar(handle, pid, outR, errR); err != nil {
		l.logger().Warn("capture sidecar not started, logs will be lost",
			"handle", handle, "error", err)
	}
	closeAll(outR, errR)
	_ = cmd.Process.Release()

	l.logger().Info("app launched", "handle", handle, "pid", pid, "path", path)

	if l.waitCrashed(pid) {
		if _, err := l.Store.SetStatus(ctx, handle, registry.StatusUnreachable); err != nil {
			return handle, err
		}
		l.logger().Warn("app exited within grace window", "handle", handle, "pid", pid)
	}
	return handle, nil
}

// waitCrashed watches pid for the grace window and reports true if it died.
func (l *Launcher) waitCrashed(pid int) bool {
	grace := l.GraceWindow
	if grace <= 0 {
		grace = 300 * time.Millisecond
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !capture.Alive(pid) {
			return true
		}
		time.Sleep(30 * time.Millisecond)
	}
	return false
}

// Stop terminates the record's native process: graceful signal, bounded wait,
// forceful escalation. Stopping an already-terminal record, or one whose
// process is already gone, reports success (idempotent stop).
func (l *Launcher) Stop(ctx context.Context, handle string) error {
	rec, err := l.Store.Get(ctx, handle)
	if errors.Is(err, registry.ErrNotFound) {
		return apperr.New(apperr.InvalidArguments, "unknown handle %q", handle)
	}
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}
	if !capture.Alive(rec.PID) {
		_, err := l.Store.SetStatus(ctx, handle, registry.StatusUnreachable)
		return err
	}

	wait := l.StopWait
	if wait <= 0 {
		wait = 3 * time.Second
	}
	terminateGroup(rec.PID)
	if !waitGone(rec.PID, wait) {
		killGroup(rec.PID)
		waitGone(rec.PID, 200*time.Millisecond)
	}
	if _, err := l.Store.SetStatus(ctx, handle, registry.StatusStopped); err != nil {
		return err
	}
	l.logger().Info("app stopped", "handle", handle, "pid", rec.PID)
	return nil
}

// Attach registers a pre-existing native process under a new handle and
// spawns a sampling-only sidecar for it.
func (l *Launcher) Attach(ctx context.Context, pid int) (string, error) {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil || !capture.Alive(pid) {
		return "", apperr.New(apperr.ProcessUnreachable, "no running process with pid %d", pid)
	}
	started := time.Now().UTC()
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		started = time.UnixMilli(ms).UTC()
	}

	handle := registry.NewHandle()
	rec := registry.Record{
		Handle:    handle,
		PID:       pid,
		Attached:  true,
		StartedAt: started,
		Status:    registry.StatusRunning,
	}
	if err := l.Store.Insert(ctx, rec); err != nil {
		return "", err
	}
	if err := l.spawnSidecar(handle, pid, nil, nil); err != nil {
		l.logger().Warn("capture sidecar not started", "handle", handle, "error", err)
	}
	l.logger().Info("attached to app", "handle", handle, "pid", pid)
	return handle, nil
}

// spawnSidecar re-executes our own binary as a detached capture worker. The
// read ends of the target's output pipes, when present, are inherited as fds
// 3 and 4.
func (l *Launcher) spawnSidecar(handle string, pid int, outR, errR *os.File) error {
	exe := l.ExecPath
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return err
		}
	}
	args := []string{
		"capture",
		"--handle", handle,
		"--pid", strconv.Itoa(pid),
		"--registry", l.RegistryPath,
	}
	if l.SampleInterval > 0 {
		args = append(args, "--interval", l.SampleInterval.String())
	}
	if l.MetricsAddr != "" {
		args = append(args, "--metrics-addr", l.MetricsAddr)
	}
	if l.AppLogDir != "" {
		args = append(args, "--app-log-dir", l.AppLogDir)
	}
	if outR != nil {
		args = append(args, "--pipes")
	}
	// #nosec G204 -- re-exec of our own binary
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if outR != nil {
		cmd.ExtraFiles = []*os.File{outR, errR}
	}
	sessionAttrs(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// waitGone polls until pid disappears or d elapses.
func waitGone(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !capture.Alive(pid) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return !capture.Alive(pid)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

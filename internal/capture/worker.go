// Package capture implements the background side of a managed application:
// a detached worker, spawned at launch time, that keeps draining the target's
// stdout/stderr into the registry and sampling its resource usage long after
// the launching invocation has exited. The worker's lifetime is bound to the
// target process, never to any invocation.
package capture

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/appctl/internal/logger"
	"github.com/loykin/appctl/internal/registry"
)

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Worker drains output and samples resources for exactly one handle. It only
// ever touches its own handle's rows, so concurrent workers never contend.
type Worker struct {
	Store  *registry.Store
	Handle string
	PID    int

	// Stdout/Stderr are the read ends of the target's output pipes; both nil
	// when attached to a pre-existing process (sampling only).
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	SampleInterval time.Duration
	AppLog         logger.FileConfig
	MetricsAddr    string
	Log            *slog.Logger
}

// Run blocks until the target process terminates, then performs the final
// registry update. An explicit stop will already have moved the record to
// stopped; otherwise the guarded transition marks it unreachable.
func (w *Worker) Run(ctx context.Context) error {
	if w.Log == nil {
		w.Log = slog.Default()
	}
	if w.SampleInterval <= 0 {
		w.SampleInterval = 5 * time.Second
	}

	var promReg *prometheus.Registry
	var g *gauges
	if w.MetricsAddr != "" {
		promReg = prometheus.NewRegistry()
		g = newGauges(promReg)
		serveMetrics(w.MetricsAddr, promReg)
	}

	var fileOut, fileErr io.WriteCloser
	if w.AppLog.Enabled() {
		fileOut, fileErr = w.AppLog.Writers(w.Handle)
		defer func() {
			if fileOut != nil {
				_ = fileOut.Close()
			}
			if fileErr != nil {
				_ = fileErr.Close()
			}
		}()
	}

	// Line appends from both streams are serialized through one channel so
	// sequence numbers mirror capture order exactly.
	type captured struct {
		stream string
		line   string
	}
	lines := make(chan captured, 256)
	var wg sync.WaitGroup
	drain := func(r io.ReadCloser, stream string, tee io.Writer) {
		defer wg.Done()
		defer func() { _ = r.Close() }()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if tee != nil {
				_, _ = tee.Write([]byte(line + "\n"))
			}
			lines <- captured{stream: stream, line: line}
		}
	}
	if w.Stdout != nil {
		wg.Add(1)
		go drain(w.Stdout, StreamStdout, fileOut)
	}
	if w.Stderr != nil {
		wg.Add(1)
		go drain(w.Stderr, StreamStderr, fileErr)
	}
	go func() {
		wg.Wait()
		close(lines)
	}()

	ticker := time.NewTicker(w.SampleInterval)
	defer ticker.Stop()
	pidLabel := strconv.Itoa(w.PID)

	w.sample(ctx, g, pidLabel)

	streamsOpen := w.Stdout != nil || w.Stderr != nil
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-lines:
			if !ok {
				// Pipe EOF: target closed its output, usually because it
				// exited. Keep sampling until the pid is truly gone.
				streamsOpen = false
				lines = nil
				if !Alive(w.PID) {
					return w.finish(ctx)
				}
				continue
			}
			// A full buffer drops the oldest entries inside AppendLog; an
			// append failure drops this line. Either way the target's own
			// I/O is never blocked.
			if err := w.Store.AppendLog(ctx, w.Handle, c.stream, c.line); err != nil {
				w.Log.Warn("dropping log line", "handle", w.Handle, "error", err)
			}
		case <-ticker.C:
			if !Alive(w.PID) && !streamsOpen {
				return w.finish(ctx)
			}
			w.sample(ctx, g, pidLabel)
		}
	}
}

func (w *Worker) sample(ctx context.Context, g *gauges, pidLabel string) {
	smp, err := SampleProcess(ctx, w.PID)
	if err != nil {
		return
	}
	if err := w.Store.UpdateSample(ctx, w.Handle, smp); err != nil {
		w.Log.Warn("sample not persisted", "handle", w.Handle, "error", err)
	}
	if g != nil {
		g.observe(w.Handle, pidLabel, smp)
	}
}

// finish applies the final status transition. The guard in the store keeps an
// explicit stop (or an earlier unreachable detection) authoritative.
func (w *Worker) finish(ctx context.Context) error {
	changed, err := w.Store.SetStatus(ctx, w.Handle, registry.StatusUnreachable)
	if err != nil {
		return err
	}
	if changed {
		w.Log.Info("target vanished without stop, marked unreachable",
			"handle", w.Handle, "pid", w.PID)
	}
	return nil
}

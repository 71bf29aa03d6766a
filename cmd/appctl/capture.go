package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/appctl/internal/capture"
	"github.com/loykin/appctl/internal/logger"
	"github.com/loykin/appctl/internal/registry"
	"github.com/spf13/cobra"
)

// CaptureFlags holds the sidecar's wiring, normally supplied by the launch
// invocation that re-executed us.
type CaptureFlags struct {
	Handle      string
	PID         int
	Registry    string
	Interval    time.Duration
	MetricsAddr string
	AppLogDir   string
	Pipes       bool
}

// newCaptureCmd is the hidden capture sidecar entry point. It inherits the
// target's stdout/stderr pipe read ends as fds 3 and 4 when --pipes is set
// and stays alive until the target exits.
func newCaptureCmd() *cobra.Command {
	f := &CaptureFlags{}
	cmd := &cobra.Command{
		Use:    "capture",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := registry.Open(f.Registry)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			w := &capture.Worker{
				Store:          store,
				Handle:         f.Handle,
				PID:            f.PID,
				SampleInterval: f.Interval,
				MetricsAddr:    f.MetricsAddr,
				Log:            logger.New("warn"),
			}
			if f.Pipes {
				w.Stdout = os.NewFile(3, "target-stdout")
				w.Stderr = os.NewFile(4, "target-stderr")
			}
			if f.AppLogDir != "" {
				w.AppLog.Dir = f.AppLogDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&f.Handle, "handle", "", "registry handle to capture for")
	cmd.Flags().IntVar(&f.PID, "pid", 0, "target process id")
	cmd.Flags().StringVar(&f.Registry, "registry", "", "registry database path")
	cmd.Flags().DurationVar(&f.Interval, "interval", 5*time.Second, "resource sampling interval")
	cmd.Flags().StringVar(&f.MetricsAddr, "metrics-addr", "", "optional prometheus listen address")
	cmd.Flags().StringVar(&f.AppLogDir, "app-log-dir", "", "optional rotated app-log directory")
	cmd.Flags().BoolVar(&f.Pipes, "pipes", false, "inherit target output pipes as fds 3 and 4")
	_ = cmd.MarkFlagRequired("handle")
	_ = cmd.MarkFlagRequired("pid")
	_ = cmd.MarkFlagRequired("registry")
	return cmd
}

// Package appctl manages desktop applications on the local host: launching
// them detached, capturing their output, and driving their windows, debug
// channel, and IPC surface through a uniform operation catalog.
package appctl

import (
	"context"
	"log/slog"

	"github.com/loykin/appctl/internal/config"
	"github.com/loykin/appctl/internal/devtools"
	"github.com/loykin/appctl/internal/dispatch"
	"github.com/loykin/appctl/internal/ipc"
	"github.com/loykin/appctl/internal/launcher"
	"github.com/loykin/appctl/internal/logger"
	"github.com/loykin/appctl/internal/registry"
	"github.com/loykin/appctl/internal/window"
)

// Re-export the types an embedding consumer needs; aliases keep conversions
// zero-cost.

type Config = config.Config

type Response = dispatch.Response

type OpInfo = dispatch.OpInfo

func DefaultConfig() Config { return config.Default() }

// LoadConfig reads the TOML config at path (missing file means defaults) and
// applies environment overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Engine is a fully wired operation front-end. Each Engine holds one registry
// connection; close it when done.
type Engine struct {
	store *registry.Store
	inner *dispatch.Engine
}

// New wires an Engine from cfg. A nil log falls back to a level-filtered
// stderr logger.
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = logger.New(cfg.LogLevel)
	}
	store, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	store.SetLogCap(cfg.LogBufferLines)

	dt := &devtools.Bridge{
		Store:   store,
		PortMin: cfg.DevtoolsPortMin,
		PortMax: cfg.DevtoolsPortMax,
		Log:     log,
	}
	inner := &dispatch.Engine{
		Cfg:   cfg,
		Store: store,
		Launcher: &launcher.Launcher{
			Store:          store,
			RegistryPath:   cfg.RegistryPath,
			GraceWindow:    cfg.GraceWindow,
			StopWait:       cfg.StopWait,
			SampleInterval: cfg.SampleInterval,
			MetricsAddr:    cfg.MetricsAddr,
			AppLogDir:      cfg.AppLog.Dir,
			Log:            log,
		},
		Windows:  &window.Manager{Store: store, Adapter: window.New(), Log: log},
		Devtools: dt,
		IPC:      &ipc.Bridge{Eval: dt, Log: log},
		Log:      log,
	}
	return &Engine{store: store, inner: inner}, nil
}

// Dispatch runs one named operation and always yields a structured response.
func (e *Engine) Dispatch(ctx context.Context, name string, args map[string]any) Response {
	return e.inner.Dispatch(ctx, name, args)
}

// Operations lists the operation catalog.
func (e *Engine) Operations() []OpInfo { return dispatch.Catalog() }

// Catalog lists the operation catalog without needing a wired Engine.
func Catalog() []OpInfo { return dispatch.Catalog() }

func (e *Engine) Close() error { return e.store.Close() }

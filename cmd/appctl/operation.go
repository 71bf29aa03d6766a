package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loykin/appctl"
	"github.com/spf13/cobra"
)

// newOperationCmd runs one catalog operation and prints exactly one JSON
// document on stdout, success or failure. Diagnostics go to stderr only.
func newOperationCmd(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operation <name> [json-args]",
		Short: "Run a single engine operation",
		Long: `Run a single engine operation against the local registry.

Arguments are passed as one JSON object, for example:

  appctl operation launch_app '{"app_path": "./myapp"}'
  appctl operation get_app_logs '{"handle": "...", "lines": 50}'
  appctl operation find_running_apps`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			name := cliArgs[0]
			opArgs := map[string]any{}
			if len(cliArgs) == 2 && cliArgs[1] != "" {
				if err := json.Unmarshal([]byte(cliArgs[1]), &opArgs); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			engine, err := appctl.New(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			resp := engine.Dispatch(context.Background(), name, opArgs)
			_, _ = cmd.OutOrStdout().Write(append(resp.JSON(), '\n'))
			if !resp.OK {
				cmd.SilenceErrors = true
				return fmt.Errorf("%s failed: %s", name, resp.Error.Code)
			}
			return nil
		},
	}
	return cmd
}

// newOperationsCmd lists the catalog.
func newOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List available operations and their arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := json.MarshalIndent(appctl.Catalog(), "", "  ")
			if err != nil {
				return err
			}
			_, _ = cmd.OutOrStdout().Write(append(raw, '\n'))
			return nil
		},
	}
}

// Command memogardenctl is a thin demonstration CLI exercising the storage
// kernel's contracts end to end (check_consistency and the Soil/Core storage
// bootstrap). It is not a kernel feature — per spec §1 the CLI/HTTP
// surface is explicitly out of scope for the kernel itself; this binary
// exists only so the kernel's contracts have a runnable entry point,
// grounded on the teacher's cmd/bd cobra command tree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/runtimectx"
	"github.com/memogarden/memogarden-system/internal/soil"
	"github.com/memogarden/memogarden-system/internal/txn"
)

var (
	verbFlag     string
	configFlag   string
)

func main() {
	root := &cobra.Command{
		Use:   "memogardenctl",
		Short: "Demonstration CLI over the memogarden storage kernel",
	}
	root.PersistentFlags().StringVar(&verbFlag, "verb", runtimectx.VerbRun, "deployment verb: serve, run, or deploy")
	root.PersistentFlags().StringVar(&configFlag, "config", "", "explicit config.toml override path")

	root.AddCommand(statusCmd())
	root.AddCommand(initCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStores(ctx context.Context) (runtimectx.RuntimeContext, *soil.Store, *core.Store, error) {
	rc, err := runtimectx.Resolve(verbFlag, configFlag)
	if err != nil {
		return runtimectx.RuntimeContext{}, nil, nil, err
	}
	if err := os.MkdirAll(rc.Paths.DataDir, 0o755); err != nil {
		return runtimectx.RuntimeContext{}, nil, nil, err
	}

	soilStore, err := soil.Open(ctx, rc.SoilPath)
	if err != nil {
		return runtimectx.RuntimeContext{}, nil, nil, err
	}
	coreStore, err := core.Open(ctx, rc.CorePath)
	if err != nil {
		_ = soilStore.Close()
		return runtimectx.RuntimeContext{}, nil, nil, err
	}
	return rc, soilStore, coreStore, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Bootstrap the Soil and Core databases for the resolved verb",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rc, soilStore, coreStore, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer soilStore.Close()
			defer coreStore.Close()

			fmt.Printf("initialized soil=%s core=%s\n", rc.SoilPath, rc.CorePath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run the startup consistency audit and print a SystemStatus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, soilStore, coreStore, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer soilStore.Close()
			defer coreStore.Close()

			report, err := txn.CheckConsistency(ctx, soilStore, coreStore)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

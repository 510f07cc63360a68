// Command keeper is the off-chain automation worker's CLI entrypoint,
// exposing the subcommands spec.md §6.5 names: start, register, status,
// claim, unregister, gen-config. Flag parsing and command wiring use
// cobra, which is widely present across the retrieved corpus for
// multi-subcommand CLIs; config file parsing itself lives in
// internal/config per spec.md §1 (out of the core's scope, but still the
// keeper's own concern end to end).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "keeper",
		Short:         "Off-chain keeper worker for automation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "keeper.toml", "path to the keeper's TOML config file")

	root.AddCommand(
		newStartCmd(),
		newRegisterCmd(),
		newStatusCmd(),
		newClaimCmd(),
		newUnregisterCmd(),
		newGenConfigCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

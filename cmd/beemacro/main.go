package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	buildID   string
	buildTime string
)

type rootFlags struct {
	configDir string
	profile   string
	dryRun    bool
	addr      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "beemacro",
		Short:         "Pause-aware movement macro with haste-compensated holds",
		Version:       fmt.Sprintf("%s (%s)", buildID, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config-dir", "config", "directory holding beemacro.yaml and profiles/")
	pf.StringVar(&flags.profile, "profile", "", "profile to run, overrides activeProfile")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "log key transitions instead of sending them")
	pf.StringVar(&flags.addr, "addr", "", "control server address, overrides http.addr")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the macro agent (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runAgent(cmd.Context(), flags)
			},
		},
		newCtlCmd(flags),
		newProfileCmd(flags),
		newSecretCmd(),
	)
	return root
}

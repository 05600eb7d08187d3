package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/beemacro/beemacro/internal/config"
	"github.com/beemacro/beemacro/internal/server"
	"github.com/spf13/cobra"
)

const defaultAddr = "127.0.0.1:8087"

// controlAddr prefers --addr, then http.addr from the config directory.
func controlAddr(flags *rootFlags) string {
	if flags.addr != "" {
		return flags.addr
	}
	config.Dir = flags.configDir
	if err := config.Load(); err == nil && config.Macro.HTTP.Addr != "" {
		return config.Macro.HTTP.Addr
	}
	return defaultAddr
}

func newCtlCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "ctl <start|stop|pause|resume|rejoin|status>",
		Short:     "Send a command to a running agent",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"start", "stop", "pause", "resume", "rejoin", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client := server.NewClient(controlAddr(flags))
			if args[0] == "status" {
				st, err := client.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.String())
				return nil
			}

			state, err := client.Command(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", args[0], state)
			return nil
		},
	}
}

func newProfileCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage profiles",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "new <name>",
			Short: "Create a profile from profiles/template",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				config.Dir = flags.configDir
				if err := config.CreateFromTemplate(args[0]); err != nil {
					return fmt.Errorf("creating profile %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile %s created\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List profiles",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				config.Dir = flags.configDir
				if err := config.Load(); err != nil {
					return err
				}
				profiles := config.GetProfiles()
				names := make([]string, 0, len(profiles))
				for name := range profiles {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					marker := " "
					if name == config.Macro.ActiveProfile {
						marker = "*"
					}
					p := profiles[name]
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d tasks, %s)\n", marker, name, len(p.Tasks), p.Movement.Strategy)
				}
				return nil
			},
		},
	)
	return cmd
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Protect tokens stored in beemacro.yaml",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a value for the current user, paste the output into the config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := config.EncryptSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	})
	return cmd
}

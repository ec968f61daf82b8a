package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the authguard CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(Deps{})
}

func newRootCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authguard",
		Short: "Sign in to a token service and check route access",
		Long: `authguard keeps a persisted session for a token service and evaluates
route tables against it. The session survives between invocations in a file
or in Redis.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML)")
	registerConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(newLoginCmd(deps))
	cmd.AddCommand(newLogoutCmd(deps))
	cmd.AddCommand(newStatusCmd(deps))
	cmd.AddCommand(newRefreshCmd(deps))
	cmd.AddCommand(newCheckCmd(deps))
	cmd.AddCommand(newRoutesCmd())

	return cmd
}

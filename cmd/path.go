package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/autodebug/autodebug/pkg/ipc"
	"github.com/spf13/cobra"
)

var exportFlag bool

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the handle path for a context without binding it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := resolveHandle()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h.Path)
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment a server for this context publishes to terminals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := resolveHandle()
		if err != nil {
			return err
		}

		env := map[string]string{rootCfg.IPC.EnvVar: h.Path}
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if exportFlag {
				fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", k, shellQuote(env[k]))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, env[k])
			}
		}
		return nil
	},
}

// resolveHandle resolves the configured context the same way serve does
func resolveHandle() (ipc.HandleDescriptor, error) {
	return ipc.NewResolver(rootCfg.IPC.AppName, rootLog).Resolve(rootCfg.IPC.Context)
}

// shellQuote wraps s in single quotes for POSIX shells
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func init() {
	envCmd.Flags().BoolVar(&exportFlag, "export", false, "Print as shell export statements")

	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(envCmd)
}

// Command medauth runs the hospital authentication service and its
// operational helpers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "medauth",
		Short:         "Authentication and authorization service for hospital staff and patients",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "YAML config file; MEDAUTH_* environment variables override it")

	root.AddCommand(newServeCmd())
	root.AddCommand(newCheckConfigCmd())
	root.AddCommand(newHashPasswordCmd())
	return root
}

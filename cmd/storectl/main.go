// storectl administers a storefront deployment: it creates the DynamoDB
// tables, seeds the catalog from YAML and hashes admin passwords.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(env *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Administer the storefront tables and catalog",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(tablesCmd(env))
	rootCmd.AddCommand(productsCmd(env))
	rootCmd.AddCommand(adminCmd())
	return rootCmd
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "vovo",
	Short:   "Achados da Vovó storefront",
	Version: Version,
	Long: `Achados da Vovó storefront: catalog, blog, accounts and back-office.

	vovo server
	vovo migrate up
	vovo worker
	vovo admin promote someone@example.com
`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

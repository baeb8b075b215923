package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

//	@title			Saleor Apps API
//	@version		1.0
//	@description	Configuration API of the Saleor apps dashboards. Each app serves only its own /api/<app> group.
//	@BasePath		/

//	@securityDefinitions.apikey	DashboardToken
//	@in							header
//	@name						Authorization-Bearer
//	@description				Dashboard session token issued by Saleor

func main() {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Saleor apps: Stripe, AvaTax, SMTP, Klaviyo, search and products feed",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(aplCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lrpc/cmd/call"
	cmdUtil "lrpc/cmd/util"
	"lrpc/cmd/serve"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "lrpc",
		Short: "minimal synchronous RPC framework",
		Long: fmt.Sprintf(`lrpc (v%s)

A minimal synchronous RPC framework: length-prefixed frames over TCP, one request per
connection, services discovered through etcd.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of lrpc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lrpc v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

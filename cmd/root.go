package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hircd",
	Short: "Multiplexing IRC daemon",
	Long:  "hircd holds one IRC connection per configured server and fans messages out to any number of local clients over a Unix socket.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

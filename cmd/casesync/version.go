package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/casesync"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of casesync",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("casesync version %s\n", strings.TrimSpace(casesync.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

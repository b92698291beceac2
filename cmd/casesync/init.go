package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .casesync store and casesync.yaml in the current directory",
	Long: `Init marks the current directory as a casesync project: it creates the
.casesync store directory and writes the current settings to casesync.yaml,
so later commands run from any subdirectory pick them up.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}

		if err := os.MkdirAll(filepath.Join(cwd, ".casesync"), 0755); err != nil {
			fatal("Failed to create store directory", err)
		}

		cfgPath := filepath.Join(cwd, "casesync.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Println("casesync.yaml already exists, left untouched")
			return
		}

		settings := map[string]string{
			"kind":    viper.GetString("kind"),
			"adapter": viper.GetString("adapter"),
		}
		if remote := viper.GetString("remote"); remote != "" {
			settings["remote"] = remote
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			fatal("Failed to encode config", err)
		}
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			fatal("Failed to write config", err)
		}

		fmt.Println("Initialized casesync project in", cwd)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

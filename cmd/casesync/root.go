package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aretw0/casesync"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "casesync",
	Short: "Local-first sync engine for case notes and tasks",
	Long: `casesync keeps case notes and tasks in a local store and syncs them
with a remote service in the background. Writes never wait on the network;
entities that could not be pushed stay pending until the next resync.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		if err := initConfig(cmd); err != nil {
			return err
		}
		slog.SetDefault(newLogger(viper.GetBool("verbose"), viper.GetString("log-file")))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: casesync.yaml in the project root)")
	flags.StringP("kind", "k", "tasks", "entity kind: notes or tasks")
	flags.String("owner", "", "owning client/case id")
	flags.String("store", "", "local store location (default: .casesync in the project root)")
	flags.String("adapter", "fs", "local store adapter: fs, badger, sqlite or memory")
	flags.String("remote", "", "base URL of the remote service (empty: offline)")
	flags.Duration("pacing", 0, "delay between pushes during resync (0: engine default)")
	flags.Duration("push-timeout", 0, "timeout of each remote call (0: engine default)")
	flags.BoolP("verbose", "v", false, "enable verbose logging")
	flags.String("log-file", "", "write JSON logs to a rotated file instead of stderr")
}

// initConfig layers flags over CASESYNC_* environment variables over the
// config file.
func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("casesync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("casesync")
		viper.SetConfigType("yaml")
		if wd, err := os.Getwd(); err == nil {
			if root, err := casesync.FindRoot(wd); err == nil {
				viper.AddConfigPath(root)
			}
		}
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newLogger(verbose bool, logFile string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if logFile != "" {
		var w io.Writer = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"acuvalidator/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	dsn      string
	driver   string
	logLevel string
)

// exitError carries a process exit status. Errors already shown to the user by the
// printer are marked reported and are not repeated on stderr.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var RootCmd = &cobra.Command{
	Use:   "acuvalidator",
	Short: "Find custom fields a customization package uses but never declares",
	Long: `
     _                __     __    _ _     _       _
    / \   ___ _   _   \ \   / /_ _| (_) __| | __ _| |_ ___  _ __
   / _ \ / __| | | |___\ \ / / _' | | |/ _' |/ _' | __/ _ \| '__|
  / ___ \ (__| |_| |____\ V / (_| | | | (_| | (_| | || (_) | |
 /_/   \_\___|\__,_|     \_/ \__,_|_|_|\__,_|\__,_|\__\___/|_|

ACUVALIDATOR - Acumatica customization package field validator
`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.SetLevel(viper.GetString("log.level")); err != nil {
			return fmt.Errorf("invalid log.level: %w", err)
		}
		return nil
	},
}

// Execute runs the root command. Exit status: 0 success, 1 missing fields in strict mode,
// 2 any other failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	os.Exit(exitStatus(err, os.Stderr))
}

// exitStatus maps err to a process exit status, writing it to stderr unless it has
// already been printed.
func exitStatus(err error, stderr io.Writer) int {
	code := 2
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		if ee.err == nil || ee.reported {
			return code
		}
	}
	fmt.Fprintln(stderr, "Error:", err)
	return code
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./acuvalidator.yaml)")
	RootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database Source Name (DSN) for live column checks")
	RootCmd.PersistentFlags().StringVar(&driver, "driver", "", "database driver (mysql, sqlserver, postgres, oracle)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("database.dsn", RootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("database.driver", RootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetDefault("log.level", "warn")
	viper.SetDefault("loop.max_failures", 5)
	viper.SetDefault("workspace.root", "")
	viper.SetDefault("settings.db_check", false)
}

// initConfig reads in config file, .env and ENV variables if set.
func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable Directory (Priority 1)
		ex, err := os.Executable()
		if err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}

		// 2. Current Directory (Priority 2)
		viper.AddConfigPath(".")

		viper.SetConfigName("acuvalidator")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ACUVALIDATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.GetLogger().Infof("Using config file: %s", viper.ConfigFileUsed())
	}
}

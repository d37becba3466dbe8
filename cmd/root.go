// Package cmd provides the command-line interface for tstlplay.
//
// Configuration is read from, in order of precedence:
//
//  1. command-line flags (--port, --compiler, ...)
//  2. TSTLPLAY_<SECTION>_<KEY> environment variables, e.g.
//     TSTLPLAY_SERVER_PORT or TSTLPLAY_COMPILER_TIMEOUT
//  3. the file named by --config or TSTLPLAY_CONFIG_FILE
//  4. .tstlplay.yml in the working directory
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/tstlplay/internal/config"
)

var (
	cfgFile string
	// configErr holds a failure to read an explicitly named config file.
	configErr error
	logLevel  = newLogLevelFlag()
)

var rootCmd = &cobra.Command{
	Use:   "tstlplay",
	Short: "A TypeScriptToLua playground server",
	Long: `tstlplay serves a TypeScriptToLua playground whose whole state lives in
the page link. Programs are compressed into the URL fragment, so a link is
all it takes to share one.

Quick Start:
  tstlplay serve                  Start the playground on localhost:8080
  tstlplay share main.ts          Print a shareable link for a file
  tstlplay decode '<link>'        Print the program held in a link
  tstlplay config check           Check the configuration for problems`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .tstlplay.yml, can also use TSTLPLAY_CONFIG_FILE)")
	rootCmd.PersistentFlags().VarP(logLevel, "log-level", "l", "log level (debug, info, warn, error)")
}

func initConfig() {
	configErr = nil
	explicit := true

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tstlplay")
	}

	if err := config.BindEnv(viper.GetViper()); err != nil {
		configErr = err
		return
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing default file is fine; a named file must exist.
		if explicit {
			configErr = fmt.Errorf("reading config file: %w", err)
		}
		return
	}
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Using config file:", viper.ConfigFileUsed())
}

// loadConfig binds the command's flags to their configuration keys and
// loads the merged configuration.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	for name, key := range flagKeys {
		if err := bindFlag(cmd.Flags().Lookup(name), key); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func bindFlag(flag *pflag.Flag, key string) error {
	if flag == nil {
		return fmt.Errorf("unknown flag for %s", key)
	}
	return viper.BindPFlag(key, flag)
}

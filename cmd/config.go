package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tstlplay/internal/config"
)

var configStrict bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration tstlplay would run with, after merging the
config file, TSTLPLAY_* environment variables and defaults.

Examples:
  tstlplay config                      # print as YAML
  tstlplay config check                # report problems
  tstlplay config check --strict       # fail on warnings too`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configuration for problems",
	Long: `Check the effective configuration for problems that only show up when
serving: a missing example file, a compiler command that is not on PATH,
a production server without allowed origins or a public URL.`,
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)

	configCheckCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	defer encoder.Close()

	return encoder.Encode(cfg)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	report := config.Check(cfg)
	fmt.Fprint(cmd.OutOrStdout(), report.String())

	switch {
	case report.HasErrors():
		return fmt.Errorf("configuration has %d error(s)", len(report.Errors))
	case configStrict && report.HasWarnings():
		return fmt.Errorf("configuration has %d warning(s)", len(report.Warnings))
	}
	return nil
}

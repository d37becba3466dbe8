package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tstlplay/internal/playground"
)

var decodeJSON bool

var decodeCmd = &cobra.Command{
	Use:   "decode <fragment|link>",
	Short: "Print the program held in a playground link",
	Long: `Print the program carried by a playground fragment or link. Both the
current compressed links (#code/...) and legacy links (#src=...) are read.
Anything else prints the built-in example.

Examples:
  tstlplay decode 'https://play.example.com/play/#code/...'
  tstlplay decode 'src=const%20x%20%3D%201'
  tstlplay decode --json '#code/...'`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Print {\"source\", \"format\"} as JSON")
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	codec := playground.NewCodec(playground.WithMaxSourceBytes(cfg.Playground.MaxSourceBytes))
	state, err := codec.DecodeLink(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if decodeJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]string{
			"source": state.SourceText,
			"format": state.Format.String(),
		})
	}

	_, err = fmt.Fprintln(out, state.SourceText)
	return err
}

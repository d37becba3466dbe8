package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tstlplay/internal/config"
	"github.com/conneroisu/tstlplay/internal/playground"
	"github.com/conneroisu/tstlplay/internal/validation"
)

var (
	shareAbsolute bool
	shareFragment bool
)

var shareCmd = &cobra.Command{
	Use:   "share [file]",
	Short: "Print a shareable link for a program",
	Long: `Print the playground link that opens with the given program loaded.
The program is read from file, or from stdin when no file is given.

Examples:
  tstlplay share main.ts                   # /play/#code/...
  cat main.ts | tstlplay share --absolute  # https://play.example.com/play/#code/...
  tstlplay share --fragment main.ts        # code/...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShare,
}

func init() {
	rootCmd.AddCommand(shareCmd)

	shareCmd.Flags().BoolVar(&shareAbsolute, "absolute", false, "Prefix the link with server.public_url")
	shareCmd.Flags().BoolVar(&shareFragment, "fragment", false, "Print only the fragment, without '#'")
	shareCmd.Flags().String("base-path", playground.DefaultBasePath, "Route the link points at")
}

func runShare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"base-path": "playground.base_path"})
	if err != nil {
		return err
	}

	source, err := readProgram(cmd, args, cfg.Playground.MaxSourceBytes)
	if err != nil {
		return err
	}

	codec := playground.NewCodec(
		playground.WithBasePath(cfg.Playground.BasePath),
		playground.WithMaxSourceBytes(cfg.Playground.MaxSourceBytes),
	)
	out := cmd.OutOrStdout()

	if shareFragment {
		fmt.Fprintln(out, codec.Fragment(source))
		return nil
	}

	link := codec.BuildShareableLink(source)
	if shareAbsolute {
		link, err = absoluteLink(cfg, link)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, link)
	return nil
}

func absoluteLink(cfg *config.Config, link string) (string, error) {
	if cfg.Server.PublicURL == "" {
		return "", fmt.Errorf("--absolute needs server.public_url to be set")
	}
	return validation.AbsoluteLink(cfg.Server.PublicURL, link)
}

// readProgram reads the named file, or stdin, refusing more than limit
// bytes.
func readProgram(cmd *cobra.Command, args []string, limit int64) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	name := "stdin"

	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
		name = args[0]
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%s is larger than %d bytes", name, limit)
	}

	return string(data), nil
}

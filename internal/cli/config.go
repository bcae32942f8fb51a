package cli

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/loglite/internal/config"
)

func newConfigCmd() *cobra.Command {
	var outPath string

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file utilities",
	}

	scaffoldCmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Write a starter configuration file with conservative defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return scaffold(outPath)
		},
	}
	scaffoldCmd.Flags().StringVar(&outPath, "out", "loglite.toml", "path to write the scaffolded config to")
	configCmd.AddCommand(scaffoldCmd)
	return configCmd
}

// scaffold writes config.Defaults() out as TOML, using BurntSushi/toml
// rather than viper's own marshaling — viper only reads configuration in
// this repo, it never writes one back out.
func scaffold(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	defaults := config.Defaults()
	return toml.NewEncoder(f).Encode(defaults)
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and persist configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInsecure(cmd)
		out, err := config.Display()
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the resolved configuration to a config file",
	Long: `Write the configuration resolved from flags, environment and .env to a YAML
config file, by default $HOME/.emf-tenancy/config.yaml. The admin password is
not written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInsecure(cmd)
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path = filepath.Join(home, ".emf-tenancy", "config.yaml")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := config.Save(cfg, path); err != nil {
			color.Red("✗ Failed to write %s: %v", path, err)
			return err
		}
		color.Green("✓ Configuration written to %s", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("path", "", "Config file to write")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

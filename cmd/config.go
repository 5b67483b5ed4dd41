package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"photocull/internal/config"
	"photocull/internal/embed"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after applying defaults, the selected profile,
the config file, environment variables (PHOTOCULL_*) and flags.

The output is a valid config file.

Example:
  photocull config show --profile night > photocull.yaml`,
	RunE: runConfigShow,
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List scoring profiles and embedding models",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Profiles:")
		for _, name := range config.Profiles() {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("Embedding models:")
		for _, name := range embed.Models() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configProfilesCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

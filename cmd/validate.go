package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/strix/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long:  `Load the configuration file, apply defaults and print the normalized result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n---\n%s", configFile, out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

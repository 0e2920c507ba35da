package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets omitted",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and list warnings",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if outputJSON {
		return writeJSON(cmd, cfg)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// runConfigValidate reports the result of the validation PersistentPreRunE
// already performed; an invalid file never reaches it.
func runConfigValidate(cmd *cobra.Command, args []string) error {
	if outputJSON {
		return writeJSON(cmd, struct {
			Valid    bool     `json:"valid"`
			Warnings []string `json:"warnings"`
		}{Valid: true, Warnings: append([]string{}, configWarnings...)})
	}

	printSuccess(cmd, "configuration is valid")
	for _, w := range configWarnings {
		printWarning(cmd, w)
	}
	return nil
}

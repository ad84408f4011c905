package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igprofiler/pkg/config"
	"igprofiler/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igprofiler configuration files.

Configuration is resolved from, in order of priority:
  - Command line flags
  - Environment variables (IGPROFILER_*, APIFY_API_TOKEN, ANTHROPIC_API_KEY)
  - .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	Long: `Write the default configuration to 'igprofiler.yaml' in the current
directory, or to the path given with --config. Existing files are never
overwritten.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Tokens, keys and
passwords are masked.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "igprofiler.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your API tokens with 'igprofiler auth set apify' and 'igprofiler auth set anthropic'")
	fmt.Println("2. Run 'igprofiler config validate' to check the configuration")
	fmt.Println("3. Analyze a profile with 'igprofiler analyze <username>' or start the API with 'igprofiler serve'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Print(string(data))
	fmt.Println()
	if configFile != "" {
		ui.PrintInfo("Configuration file", configFile)
	}
	ui.PrintInfo("Apify configured", fmt.Sprintf("%t", cfg.ApifyConfigured()))
	ui.PrintInfo("Anthropic configured", fmt.Sprintf("%t", cfg.AnthropicConfigured()))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ui.PrintSuccess("Configuration is valid")
	if !cfg.ApifyConfigured() {
		ui.PrintWarning("Apify token is not set; profiles cannot be scraped")
	}
	if !cfg.AnthropicConfigured() {
		ui.PrintWarning("Anthropic API key is not set; reports will use the basic analysis")
	}
	return nil
}

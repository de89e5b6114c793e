package cmd

import (
	"fmt"
	"os"

	"github.com/mayanks4367/zero-trust/internal/misc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage vault configuration",
	Long:  `Manage the daemon and CLI configuration: PIN, session length, API endpoint, audit and guard settings.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Long:  `Display the effective configuration from all sources (config file, ZTV_* environment variables, flags). The PIN and guard secret are redacted.`,
	RunE:  runConfigView,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  `Set a configuration value in the config file. The key uses dot notation (e.g., vault.session_ttl).`,
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long:  `Get a configuration value. The key uses dot notation (e.g., server.socket).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUnset,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE:  runConfigValidate,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration keys",
	RunE:  runConfigList,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  `Reset the configuration file to default values. This overwrites the existing config file.`,
	RunE:  runConfigReset,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	RunE:  runConfigEdit,
}

var (
	configForce    bool
	configGlobal   bool
	configTemplate string
	viewFormat     string
	listFormat     string
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configEditCmd)

	configCmd.PersistentFlags().BoolVar(&configGlobal, "global", false, "use the system-wide configuration file")

	configViewCmd.Flags().StringVarP(&viewFormat, "format", "f", "yaml", "output format (yaml, json, table)")

	configSetCmd.Flags().BoolVar(&configForce, "force", false, "set the value even if the key is unknown")

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing config file")
	configInitCmd.Flags().StringVar(&configTemplate, "template", "default", "configuration template (default, minimal, full)")

	configResetCmd.Flags().BoolVar(&configForce, "force", false, "reset without confirmation")

	configListCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, yaml, json)")
}

func runConfigView(cmd *cobra.Command, args []string) error {
	switch viewFormat {
	case "json":
		return printConfigJSON()
	case "yaml":
		return printConfigYAML()
	case "table":
		return printConfigTable()
	default:
		return fmt.Errorf("unsupported format: %s", viewFormat)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	if !configForce && !isValidConfigKey(key) {
		return fmt.Errorf("unknown configuration key: %s (use --force to override)", key)
	}

	convertedValue, err := convertStringValue(value)
	if err != nil {
		return fmt.Errorf("failed to convert value: %w", err)
	}
	if err = validateConfigValue(key, convertedValue); err != nil {
		return err
	}

	viper.Set(key, convertedValue)

	configFile := getConfigFilePath(configGlobal)
	if err = ensureConfigDir(configFile); err != nil {
		return fmt.Errorf("failed to ensure config directory: %w", err)
	}

	if err = viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if isSensitiveConfigKey(key) {
		fmt.Printf("Set %s\n", key)
	} else {
		fmt.Printf("Set %s = %v\n", key, convertedValue)
	}
	fmt.Printf("Configuration saved to: %s\n", configFile)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	if !viper.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	value := viper.Get(key)
	if isSensitiveConfigKey(key) {
		value = "[REDACTED]"
	}
	fmt.Printf("%s = %v\n", key, value)

	if viper.InConfig(key) {
		fmt.Printf("Source: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Println("Source: defaults/environment/flags")
	}

	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	key := args[0]
	configFile := getConfigFilePath(configGlobal)

	if !fileExists(configFile) {
		return fmt.Errorf("no configuration file at %s", configFile)
	}

	// only the file contents, so defaults are not written back
	fileConfig := viper.New()
	fileConfig.SetConfigFile(configFile)
	if err := fileConfig.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config := fileConfig.AllSettings()
	if err := unsetNestedKey(config, key); err != nil {
		return fmt.Errorf("failed to unset key %s: %w", key, err)
	}

	if err := writeConfigFile(configFile, config); err != nil {
		return err
	}

	fmt.Printf("Removed configuration key: %s\n", key)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := getConfigFilePath(configGlobal)

	if fileExists(configFile) && !configForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configFile)
	}

	if err := writeConfigFile(configFile, getConfigTemplate(configTemplate)); err != nil {
		return err
	}

	fmt.Printf("Configuration file created: %s\n", configFile)
	fmt.Printf("Template used: %s\n", configTemplate)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	problems := validateConfiguration()

	if len(problems) == 0 {
		fmt.Println("✓ Configuration is valid")
		return nil
	}

	fmt.Println("✗ Configuration validation failed:")
	for _, problem := range problems {
		fmt.Printf("  - %s\n", problem)
	}

	return fmt.Errorf("configuration validation failed with %d errors", len(problems))
}

func runConfigList(cmd *cobra.Command, args []string) error {
	switch listFormat {
	case "table":
		return printConfigKeysTable(configKeys)
	case "yaml":
		return printConfigKeysYAML(configKeys)
	case "json":
		return printConfigKeysJSON(configKeys)
	default:
		return fmt.Errorf("unsupported format: %s", listFormat)
	}
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	if !configForce && !promptConfirmation("This will reset your configuration to defaults. Continue?") {
		fmt.Println("Reset cancelled")
		return nil
	}

	configFile := getConfigFilePath(configGlobal)
	if err := writeConfigFile(configFile, getConfigTemplate("default")); err != nil {
		return err
	}

	fmt.Printf("Configuration reset to defaults: %s\n", configFile)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configFile := getConfigFilePath(configGlobal)

	if !fileExists(configFile) {
		if err := runConfigInit(cmd, nil); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	editor := getDefaultEditor()
	fmt.Printf("Opening %s with %s...\n", configFile, editor)
	return executeEditor(editor, configFile)
}

func writeConfigFile(configFile string, config map[string]interface{}) error {
	if err := ensureConfigDir(configFile); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// the file can hold the PIN
	if err = os.WriteFile(configFile, data, misc.FilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/mayanks4367/zero-trust/internal/misc"
	"github.com/rodaine/table"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configKeys describes every key the CLI and daemon understand
var configKeys = map[string]string{
	"vault.pin":                 "PIN that unlocks the vault (32-bit integer)",
	"vault.session_ttl":         "How long an unlock stays valid (Go duration)",
	"vault.memory_lock":         "Lock secret pages in RAM",
	"vault.lock_file":           "Single-instance lock file for the daemon",
	"server.addr":               "TCP address of the vault API (wins over server.socket)",
	"server.socket":             "Unix socket path of the vault API",
	"logging.level":             "Log level (debug, info, warn, error)",
	"logging.pretty":            "Human readable log output",
	"audit.enabled":             "Enable audit logging",
	"audit.type":                "Audit logger type (file, syslog)",
	"audit.options.file_path":   "Audit log file path",
	"audit.options.max_size":    "Audit log size in MB before rotation",
	"audit.options.max_backups": "Rotated audit logs to keep",
	"audit.options.max_age":     "Days to keep rotated audit logs",
	"audit.log_level":           "Audit log level",
	"guard.shared_secret":       "Shared secret for guard tokens",
	"guard.keyring.enabled":     "Load the guard secret from the OS keyring",
	"guard.keyring.service":     "Keyring service name",
	"guard.keyring.key":         "Keyring item holding the guard secret",
}

func getConfigFilePath(global bool) string {
	if global {
		return filepath.Join("/etc", misc.AppName, "config.yaml")
	}

	if cfgFile != "" {
		return cfgFile
	}

	return filepath.Join(xdg.ConfigHome, misc.AppName, "config.yaml")
}

func ensureConfigDir(configFile string) error {
	return os.MkdirAll(filepath.Dir(configFile), misc.DirPermissions)
}

func isValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func convertStringValue(value string) (interface{}, error) {
	if value == "true" || value == "false" {
		return value == "true", nil
	}

	// durations stay strings so viper can parse them later
	if _, err := time.ParseDuration(value); err == nil {
		return value, nil
	}

	if strings.Contains(value, ".") {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f, nil
		}
	} else if i, err := strconv.Atoi(value); err == nil {
		return i, nil
	}

	return value, nil
}

func unsetNestedKey(config map[string]interface{}, key string) error {
	parts := strings.Split(key, ".")

	current := config
	for i, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("key path not found at %s", strings.Join(parts[:i+1], "."))
		}
		current = next
	}

	delete(current, parts[len(parts)-1])
	return nil
}

func getConfigTemplate(template string) map[string]interface{} {
	runtimeDir := filepath.Join(xdg.RuntimeDir, misc.AppName)

	switch template {
	case "minimal":
		return map[string]interface{}{
			"vault": map[string]interface{}{
				"pin":         1337,
				"session_ttl": "30s",
			},
		}
	case "full":
		return map[string]interface{}{
			"vault": map[string]interface{}{
				"pin":         1337,
				"session_ttl": "30s",
				"memory_lock": true,
				"lock_file":   filepath.Join(runtimeDir, "vault.lock"),
			},
			"server": map[string]interface{}{
				"addr":   "",
				"socket": filepath.Join(runtimeDir, "vault.sock"),
			},
			"logging": map[string]interface{}{
				"level":  "info",
				"pretty": false,
			},
			"audit": map[string]interface{}{
				"enabled": true,
				"type":    "file",
				"options": map[string]interface{}{
					"file_path":   filepath.Join(xdg.StateHome, misc.AppName, "audit.log"),
					"max_size":    100,
					"max_backups": 5,
					"max_age":     30,
				},
				"log_level": "info",
			},
			"guard": map[string]interface{}{
				"shared_secret": "",
				"keyring": map[string]interface{}{
					"enabled": false,
					"service": misc.AppName,
					"key":     "guard-shared-secret",
				},
			},
		}
	default:
		return map[string]interface{}{
			"vault": map[string]interface{}{
				"pin":         1337,
				"session_ttl": "30s",
				"memory_lock": true,
			},
			"server": map[string]interface{}{
				"socket": filepath.Join(runtimeDir, "vault.sock"),
			},
			"audit": map[string]interface{}{
				"enabled": false,
				"type":    "file",
			},
		}
	}
}

func validateConfiguration() []string {
	var errors []string

	for key := range configKeys {
		if !viper.IsSet(key) {
			continue
		}
		if err := validateConfigValue(key, viper.Get(key)); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if viper.GetString("server.addr") == "" && viper.GetString("server.socket") == "" {
		errors = append(errors, "one of server.addr or server.socket is required")
	}

	if viper.GetBool("audit.enabled") && viper.GetString("audit.type") == "file" {
		if viper.GetString("audit.options.file_path") == "" {
			errors = append(errors, "audit file path is required when using file audit")
		}
	}

	sort.Strings(errors)
	return errors
}

// validateConfigValue checks a single value against the rules for its key
func validateConfigValue(key string, value interface{}) error {
	raw := fmt.Sprintf("%v", value)

	switch key {
	case "vault.pin":
		if _, err := strconv.ParseInt(raw, 10, 32); err != nil {
			return fmt.Errorf("vault.pin must be a 32-bit integer: %s", raw)
		}
	case "vault.session_ttl":
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid vault.session_ttl: %s", raw)
		}
		if ttl <= 0 {
			return fmt.Errorf("vault.session_ttl must be positive")
		}
	case "vault.memory_lock", "logging.pretty", "audit.enabled", "guard.keyring.enabled":
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("%s must be true or false: %s", key, raw)
		}
	case "logging.level", "audit.log_level":
		if !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(raw)) {
			return fmt.Errorf("invalid %s: %s (valid: debug, info, warn, error)", key, raw)
		}
	case "audit.type":
		validTypes := []string{"file", "syslog"}
		if !contains(validTypes, raw) {
			return fmt.Errorf("invalid audit type: %s (valid: %s)", raw, strings.Join(validTypes, ", "))
		}
	case "audit.options.max_size", "audit.options.max_backups", "audit.options.max_age":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer: %s", key, raw)
		}
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func printConfigTable() error {
	settings := viper.AllSettings()
	var keys []string
	flattenKeys(settings, "", &keys)
	sort.Strings(keys)

	tbl := table.New("KEY", "VALUE", "SOURCE").WithWriter(os.Stdout)
	for _, key := range keys {
		value := viper.Get(key)
		source := "default"
		if viper.InConfig(key) {
			source = filepath.Base(viper.ConfigFileUsed())
		}

		envKey := "ZTV_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) != "" {
			source = "environment"
		}

		if isSensitiveConfigKey(key) {
			value = "[REDACTED]"
		}

		tbl.AddRow(key, value, source)
	}
	tbl.Print()
	return nil
}

func printConfigJSON() error {
	config := viper.AllSettings()
	maskSensitiveValues(config)

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

func printConfigYAML() error {
	config := viper.AllSettings()
	maskSensitiveValues(config)

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func printConfigKeysTable(keys map[string]string) error {
	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	tbl := table.New("KEY", "DESCRIPTION").WithWriter(os.Stdout)
	for _, key := range sorted {
		tbl.AddRow(key, keys[key])
	}
	tbl.Print()
	return nil
}

func printConfigKeysYAML(keys map[string]string) error {
	data, err := yaml.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal keys to YAML: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func printConfigKeysJSON(keys map[string]string) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keys to JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// flattenKeys recursively flattens nested maps into dot-notation keys
func flattenKeys(m map[string]interface{}, prefix string, keys *[]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(map[string]interface{}); ok {
			flattenKeys(nested, key, keys)
		} else {
			*keys = append(*keys, key)
		}
	}
}

// isSensitiveConfigKey reports whether a key holds the PIN or the guard secret
func isSensitiveConfigKey(key string) bool {
	lowerKey := strings.ToLower(key)
	if lowerKey == "guard.keyring.key" {
		// item name, not key material
		return false
	}
	for _, sensitive := range []string{"pin", "secret", "password", "token"} {
		if strings.HasSuffix(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

func maskSensitiveValues(config map[string]interface{}) {
	maskWithPrefix(config, "")
}

func maskWithPrefix(config map[string]interface{}, prefix string) {
	for key, value := range config {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			maskWithPrefix(nested, full)
			continue
		}
		if isSensitiveConfigKey(full) {
			config[key] = "[REDACTED]"
		}
	}
}

func getDefaultEditor() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if visual := os.Getenv("VISUAL"); visual != "" {
		return visual
	}

	editors := []string{"nano", "vim", "vi", "emacs", "code"}
	if runtime.GOOS == "darwin" {
		editors = []string{"code", "nano", "vim", "vi"}
	}
	for _, editor := range editors {
		if _, err := exec.LookPath(editor); err == nil {
			return editor
		}
	}
	return "vi"
}

func executeEditor(editor, file string) error {
	var cmd *exec.Cmd
	if strings.Contains(editor, "code") {
		cmd = exec.Command(editor, "--wait", file)
	} else {
		cmd = exec.Command(editor, file)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

func promptConfirmation(message string) bool {
	fmt.Printf("%s (y/N): ", message)
	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// sessionTTL reads vault.session_ttl, falling back to the vault default
func sessionTTL() (time.Duration, error) {
	raw := viper.GetString("vault.session_ttl")
	if raw == "" {
		return zerotrust.DefaultSessionTTL, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid vault.session_ttl %q: %w", raw, err)
	}
	return ttl, nil
}

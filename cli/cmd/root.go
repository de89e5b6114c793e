package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/mayanks4367/zero-trust/audit"
	"github.com/mayanks4367/zero-trust/client"
	"github.com/mayanks4367/zero-trust/guard"
	"github.com/mayanks4367/zero-trust/internal/log"
	"github.com/mayanks4367/zero-trust/internal/misc"
	"github.com/mayanks4367/zero-trust/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	logger     log.Logger
	cliContext *CLIContext
)

type CLIContext struct {
	UserID    string
	SessionID string
	Source    string // hostname
	StartTime time.Time
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ztv",
	Short: "A zero-trust vault holding a single secret behind a timed unlock",
	Long: `A zero-trust vault that keeps one secret of up to 4096 bytes in guarded memory.
The secret is only readable or writable after an unlock with the vault PIN, and
every unlock closes again automatically when its session expires.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initializeCLI,
}

// SetVersion sets the version printed by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/zero-trust/config.yaml)")
	rootCmd.PersistentFlags().String("addr", "", "vault API TCP address (host:port)")
	rootCmd.PersistentFlags().String("socket", "", "vault API unix socket path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable log output")

	bindFlagsOrPanic(rootCmd.PersistentFlags(), map[string]string{
		"server.addr":    "addr",
		"server.socket":  "socket",
		"logging.level":  "log-level",
		"logging.pretty": "log-pretty",
	})

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit logger type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagsOrPanic(rootCmd.PersistentFlags(), map[string]string{
		"audit.enabled":           "audit",
		"audit.type":              "audit-type",
		"audit.options.file_path": "audit-file",
	})
}

// bindFlagsOrPanic binds config keys to the named flags of a flag set.
func bindFlagsOrPanic(flags *pflag.FlagSet, keys map[string]string) {
	for configKey, flagName := range keys {
		if err := viper.BindPFlag(configKey, flags.Lookup(flagName)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
		}
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(filepath.Join(xdg.ConfigHome, misc.AppName))
		viper.AddConfigPath("/etc/" + misc.AppName)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ZTV")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func setDefaults() {
	runtimeDir := filepath.Join(xdg.RuntimeDir, misc.AppName)

	viper.SetDefault("vault.pin", 1337)
	viper.SetDefault("vault.session_ttl", "30s")
	viper.SetDefault("vault.memory_lock", true)
	viper.SetDefault("vault.lock_file", filepath.Join(runtimeDir, "vault.lock"))

	viper.SetDefault("server.socket", filepath.Join(runtimeDir, "vault.sock"))

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.pretty", false)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", "file")
	viper.SetDefault("audit.options.file_path", filepath.Join(xdg.StateHome, misc.AppName, "audit.log"))
	viper.SetDefault("audit.options.max_size", 100)
	viper.SetDefault("audit.options.max_backups", 5)
	viper.SetDefault("audit.options.max_age", 30)
	viper.SetDefault("audit.log_level", "info")

	viper.SetDefault("guard.keyring.enabled", false)
	viper.SetDefault("guard.keyring.service", misc.AppName)
	viper.SetDefault("guard.keyring.key", "guard-shared-secret")
}

func initializeCLI(cmd *cobra.Command, args []string) error {
	var logCfg log.Config
	if err := viper.UnmarshalKey("logging", &logCfg); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger = log.New(logCfg)

	cliContext = &CLIContext{
		UserID:    misc.CurrentUser(),
		SessionID: uuid.NewString(),
		Source:    misc.Hostname(),
		StartTime: time.Now(),
	}
	return nil
}

func serverConfig() (server.Config, error) {
	var cfg server.Config
	if err := viper.UnmarshalKey("server", &cfg); err != nil {
		return cfg, fmt.Errorf("invalid server configuration: %w", err)
	}
	return cfg, nil
}

func newClient() (*client.Client, error) {
	cfg, err := serverConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg, client.Options{Logger: logger})
}

func guardSource() (guard.SourceConfig, error) {
	var cfg guard.SourceConfig
	if err := viper.UnmarshalKey("guard", &cfg); err != nil {
		return cfg, fmt.Errorf("invalid guard configuration: %w", err)
	}
	return cfg, nil
}

func vaultPIN() (int32, error) {
	pin := viper.GetInt64("vault.pin")
	if pin < -1<<31 || pin > 1<<31-1 {
		return 0, fmt.Errorf("vault.pin %d does not fit in 32 bits", pin)
	}
	return int32(pin), nil
}

func createAuditLogger() (audit.Logger, error) {
	return audit.NewLogger(&audit.Config{
		Enabled: viper.GetBool("audit.enabled"),
		Source:  cliContext.Source,
		Type:    audit.ConfigType(viper.GetString("audit.type")),
		Options: map[string]interface{}{
			"file_path":   viper.GetString("audit.options.file_path"),
			"max_size":    viper.GetInt("audit.options.max_size"),
			"max_backups": viper.GetInt("audit.options.max_backups"),
			"max_age":     viper.GetInt("audit.options.max_age"),
		},
		LogLevel: viper.GetString("audit.log_level"),
	})
}

func formatError(err error) string {
	if err == nil {
		return ""
	}

	message := err.Error()
	if len(message) > 0 {
		first := string(message[0])
		if first != strings.ToUpper(first) {
			message = strings.ToUpper(first) + message[1:]
		}
	}
	return fmt.Sprintf("Error: %s", message)
}

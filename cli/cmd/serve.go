package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/mayanks4367/zero-trust/internal/metrics"
	"github.com/mayanks4367/zero-trust/internal/misc"
	"github.com/mayanks4367/zero-trust/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault daemon",
	Long: `Run the vault in the foreground and expose it on the configured unix socket or
TCP address. The vault starts locked and empty; nothing is persisted, so the
secret is gone once the daemon stops. Only one daemon may run per lock file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Duration("session-ttl", 0, "time a successful unlock keeps the vault open")
	serveCmd.Flags().Bool("memory-lock", true, "lock process memory so the secret is never swapped")
	serveCmd.Flags().String("lock-file", "", "single instance lock file")

	bindFlagsOrPanic(serveCmd.Flags(), map[string]string{
		"vault.session_ttl": "session-ttl",
		"vault.memory_lock": "memory-lock",
		"vault.lock_file":   "lock-file",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	lockPath := viper.GetString("vault.lock_file")
	if err := os.MkdirAll(filepath.Dir(lockPath), misc.DirPermissions); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	instance := flock.New(lockPath)
	locked, err := instance.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another vault is already running (lock held on %s)", lockPath)
	}
	defer instance.Unlock()

	pin, err := vaultPIN()
	if err != nil {
		return err
	}
	ttl, err := sessionTTL()
	if err != nil {
		return err
	}

	auditLogger, err := createAuditLogger()
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	collector := metrics.New()
	options := zerotrust.Options{
		PIN:              pin,
		SessionTTL:       ttl,
		EnableMemoryLock: viper.GetBool("vault.memory_lock"),
		UserID:           cliContext.UserID,
		Logger:           logger,
		Metrics:          collector,
	}

	vault, err := zerotrust.New(options, auditLogger)
	if err != nil {
		_ = auditLogger.Close()
		return fmt.Errorf("failed to start vault: %w", err)
	}

	registry, err := metrics.NewRegistry(logger, collector)
	if err != nil {
		_ = vault.Close()
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	cfg, err := serverConfig()
	if err != nil {
		_ = vault.Close()
		return err
	}
	ln, err := server.Listen(cfg)
	if err != nil {
		_ = vault.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(vault, server.Options{Logger: logger, Registry: registry})
	srv.SetReady(true)

	logger.Info().
		Str("memory_protection", vault.SecureMemoryProtection()).
		Str("lock_file", lockPath).
		Msg("vault daemon started")

	serveErr := srv.Serve(ctx, ln)
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error().Err(serveErr).Msg("http server error")
	}

	// the listener is drained before the vault is torn down
	closeErr := vault.Close()
	if cfg.Addr == "" && cfg.Socket != "" {
		_ = os.Remove(cfg.Socket)
	}
	logger.Info().Msg("vault daemon stopped")

	return errors.Join(serveErr, closeErr)
}

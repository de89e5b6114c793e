package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mayanks4367/zero-trust/guard"
	"github.com/spf13/cobra"
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Unlock the vault with time-based tokens",
	Long: `Read tokens, one per line, from stdin and unlock the running vault with the
configured PIN as soon as a valid token arrives. A token is valid for the
current 30 second window and the one before it. The guard exits after the
first successful unlock. Pipe the output of a scanner or type the token shown
by 'ztv token'.`,
	RunE: runGuard,
}

var guardTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current guard token",
	Long:  "Print the token accepted by the guard right now and how long it remains current.",
	RunE:  runGuardToken,
}

var guardSetSecretCmd = &cobra.Command{
	Use:   "set-secret",
	Short: "Store the guard shared secret in the OS keyring",
	RunE:  runGuardSetSecret,
}

var tokenWatch bool

func init() {
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(guardTokenCmd)
	guardCmd.AddCommand(guardSetSecretCmd)

	guardTokenCmd.Flags().BoolVarP(&tokenWatch, "watch", "w", false, "keep printing a fresh token every window")
}

func loadGuardSecret() ([]byte, error) {
	source, err := guardSource()
	if err != nil {
		return nil, err
	}
	secret, err := guard.LoadSecret(source)
	if err != nil {
		if errors.Is(err, guard.ErrNoSecret) {
			return nil, fmt.Errorf("%w: set guard.shared_secret or run 'ztv guard set-secret'", err)
		}
		return nil, err
	}
	return secret, nil
}

func runGuard(cmd *cobra.Command, args []string) error {
	secret, err := loadGuardSecret()
	if err != nil {
		return err
	}
	pin, err := vaultPIN()
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	auditLogger, err := createAuditLogger()
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer auditLogger.Close()

	g, err := guard.New(secret, c, guard.Options{PIN: pin, Logger: logger, Audit: auditLogger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "Waiting for token...")
	err = g.Watch(ctx, os.Stdin)
	switch {
	case err == nil:
		fmt.Println("Access granted: vault unlocked")
		return nil
	case errors.Is(err, io.EOF):
		return fmt.Errorf("input closed without a valid token")
	case ctx.Err() != nil:
		return nil
	default:
		return err
	}
}

func runGuardToken(cmd *cobra.Command, args []string) error {
	secret, err := loadGuardSecret()
	if err != nil {
		return err
	}

	for {
		now := time.Now()
		remaining := guard.Remaining(now)
		fmt.Printf("%s  (valid for %ds)\n", guard.Generate(secret, now), int(remaining.Seconds()))
		if !tokenWatch {
			return nil
		}

		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(remaining):
		}
	}
}

func runGuardSetSecret(cmd *cobra.Command, args []string) error {
	source, err := guardSource()
	if err != nil {
		return err
	}

	value, err := promptSecret("Guard shared secret: ")
	if err != nil {
		return err
	}

	ring, err := guard.OpenKeyring(source.Keyring)
	if err != nil {
		return err
	}
	if err = guard.StoreSecret(ring, source.Keyring.Key, []byte(value)); err != nil {
		return err
	}

	fmt.Println("Shared secret stored in keyring")
	if !source.Keyring.Enabled {
		fmt.Println("Enable it with: ztv config set guard.keyring.enabled true")
	}
	return nil
}

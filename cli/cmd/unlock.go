package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault with the PIN",
	Long: `Submit the vault PIN. On success the vault stays open for one session and
relocks by itself afterwards; unlocking an open vault restarts the session.
The PIN is read from the terminal without echo unless --pin is given.`,
	RunE: runUnlock,
}

var (
	unlockPIN     string
	unlockControl bool
)

func init() {
	rootCmd.AddCommand(unlockCmd)

	unlockCmd.Flags().StringVar(&unlockPIN, "pin", "", "vault PIN (prompted when omitted)")
	unlockCmd.Flags().BoolVar(&unlockControl, "control", false, "send the PIN as a raw CmdUnlock control request")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	raw := unlockPIN
	if raw == "" {
		var err error
		if raw, err = promptSecret("Vault PIN: "); err != nil {
			return err
		}
	}

	pin, err := parsePIN(raw)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	if unlockControl {
		err = c.Control(cmd.Context(), zerotrust.CmdUnlock, zerotrust.EncodePIN(pin))
	} else {
		err = c.Unlock(cmd.Context(), pin)
	}
	if err != nil {
		return err
	}

	st, err := c.Status(cmd.Context())
	if err != nil {
		fmt.Println("Vault unlocked")
		return nil
	}
	fmt.Printf("Vault unlocked for %s\n", st.SessionTTL)
	return nil
}

func parsePIN(raw string) (int32, error) {
	pin, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("PIN must be a 32-bit integer")
	}
	return int32(pin), nil
}

// promptSecret reads a line from the terminal without echo, or a plain line
// when stdin is not a terminal.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		value, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read from terminal: %w", err)
		}
		return string(value), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault status",
	Long:  "Display the lock state of the running vault, the session deadline and the stored length while unlocked, and the memory protection level.",
	RunE:  showStatus,
}

var statusFormat string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "output format (text, json)")
}

func showStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	st, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}

	switch statusFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "text":
		printStatus(st)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", statusFormat)
	}
}

func printStatus(st zerotrust.Status) {
	fmt.Println("Vault Status")
	fmt.Println("============")

	fmt.Printf("State: %s\n", st.State)
	if st.Deadline != nil {
		fmt.Printf("Locks At: %s (in %s)\n", st.Deadline.Local().Format(time.RFC3339), st.Remaining.Round(time.Second))
	}
	if st.Length != nil {
		fmt.Printf("Stored: %d / %d bytes\n", *st.Length, st.Capacity)
	} else {
		fmt.Printf("Capacity: %d bytes\n", st.Capacity)
	}
	fmt.Printf("Session Length: %s\n", st.SessionTTL)
	fmt.Printf("Memory Protection: %s\n", st.MemoryProtection)
}

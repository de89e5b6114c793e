package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/mayanks4367/zero-trust/internal/misc"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the secret",
	Long: `Read the stored secret, or a slice of it with --offset and --length, and
write it to stdout or to --out. Fails while the vault is locked.`,
	Args: cobra.NoArgs,
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write [value]",
	Short: "Replace the secret",
	Long: `Replace the whole secret with the given value, the contents of --file, or
stdin. Anything beyond 4096 bytes is dropped. Fails while the vault is locked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWrite,
}

var (
	readOffset int64
	readLength int
	readOut    string
	writeFile  string
)

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)

	readCmd.Flags().Int64Var(&readOffset, "offset", 0, "byte offset to start reading at")
	readCmd.Flags().IntVar(&readLength, "length", zerotrust.MaxSecretSize, "maximum number of bytes to read")
	readCmd.Flags().StringVarP(&readOut, "out", "o", "", "write the secret to this file instead of stdout")

	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "read the new secret from this file")
}

func runRead(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	data, next, err := c.Read(cmd.Context(), readOffset, readLength)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(data)

	if len(data) == 0 {
		logger.Debug().Int64("offset", next).Msg("end of secret")
	}

	if readOut != "" {
		if err = os.WriteFile(readOut, data, misc.FilePermissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", readOut, err)
		}
		fmt.Fprintf(os.Stderr, "%d bytes written to %s\n", len(data), readOut)
		return nil
	}

	_, err = os.Stdout.Write(data)
	return err
}

func runWrite(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	switch {
	case len(args) == 1:
		data = []byte(args[0])
	case writeFile != "":
		if data, err = os.ReadFile(writeFile); err != nil {
			return fmt.Errorf("failed to read %s: %w", writeFile, err)
		}
	default:
		if data, err = io.ReadAll(io.LimitReader(os.Stdin, zerotrust.MaxSecretSize+1)); err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	defer memguard.WipeBytes(data)

	c, err := newClient()
	if err != nil {
		return err
	}

	result, err := c.Write(cmd.Context(), data)
	if err != nil {
		return err
	}

	if result.Truncated {
		fmt.Printf("Stored %d bytes (truncated to capacity)\n", result.Stored)
		return nil
	}
	fmt.Printf("Stored %d bytes\n", result.Stored)
	return nil
}

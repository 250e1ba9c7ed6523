package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	credentials "ms-perfiles/internal/credentials/service"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [secret]",
	Short: "Print a bcrypt hash for a credentials row",
	Long: `Print a bcrypt hash suitable for the credentials.password_hash column.
The secret is read from the first argument or, when absent, from one line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var secret string
	if len(args) == 1 {
		secret = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}

	hash, err := credentials.HashSecret(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

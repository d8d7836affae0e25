package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// minAdminKeyLength is the shortest admin key hash-key accepts.
const minAdminKeyLength = 16

func newHashKeyCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an admin key",
		Long: "Print the bcrypt hash to configure as GENRELAY_ADMIN_KEY_HASH. " +
			"The key is read from stdin when no argument is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read key: %w", err)
				}
				key = line
			}

			hash, err := hashAdminKey(key, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")

	return cmd
}

func hashAdminKey(key string, cost int) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) < minAdminKeyLength {
		return "", fmt.Errorf("admin key must be at least %d characters", minAdminKeyLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

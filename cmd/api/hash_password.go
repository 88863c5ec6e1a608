package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"workspace-auth/internal/auth"
)

var errEmptyPassword = errors.New("password is required")

// NewHashPasswordCmd prints a hash suitable for the users.password_hash column.
// The password is read from stdin so it stays out of shell history.
func NewHashPasswordCmd() *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			hasher, err := auth.NewHasher(auth.PasswordAlgorithm(strings.ToLower(algorithm)))
			if err != nil {
				return err
			}

			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", string(auth.AlgorithmBcrypt), "bcrypt or argon2id")

	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errEmptyPassword
	}
	return password, nil
}

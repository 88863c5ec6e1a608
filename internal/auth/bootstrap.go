package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type CredentialWriter interface {
	UpsertCredential(ctx context.Context, username string, softwareID int64, passwordHash string) (string, error)
}

// BootstrapCredential seeds one credential from deployment config. It does
// nothing when username or password is empty.
func BootstrapCredential(ctx context.Context, writer CredentialWriter, hasher PasswordHasher, username, password string, softwareID int64) (string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return "", nil
	}
	if softwareID <= 0 {
		return "", errors.New("bootstrap software id must be positive")
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash bootstrap password: %w", err)
	}

	userID, err := writer.UpsertCredential(ctx, username, softwareID, hash)
	if err != nil {
		return "", fmt.Errorf("store bootstrap credential: %w", err)
	}

	return userID, nil
}

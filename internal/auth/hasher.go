package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type PasswordAlgorithm string

const (
	AlgorithmBcrypt   PasswordAlgorithm = "bcrypt"
	AlgorithmArgon2id PasswordAlgorithm = "argon2id"
)

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32
	argon2Prefix  = "$argon2id$"

	// Upper bounds for parameters read back from stored hashes.
	argon2MaxMemory = 1024 * 1024
	argon2MaxTime   = 16
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrInvalidHash   = errors.New("invalid password hash")
)

// Hasher hashes new passwords with one algorithm and verifies stored hashes of
// either supported algorithm, so a deployment can switch algorithms without a
// migration.
type Hasher struct {
	algorithm  PasswordAlgorithm
	bcryptCost int
}

type HasherOption func(*Hasher)

func WithBcryptCost(cost int) HasherOption {
	return func(h *Hasher) {
		h.bcryptCost = cost
	}
}

func NewHasher(algorithm PasswordAlgorithm, opts ...HasherOption) (*Hasher, error) {
	switch algorithm {
	case "":
		algorithm = AlgorithmBcrypt
	case AlgorithmBcrypt, AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", algorithm)
	}

	h := &Hasher{algorithm: algorithm, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(h)
	}
	if h.bcryptCost < bcrypt.MinCost || h.bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", h.bcryptCost)
	}
	return h, nil
}

func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	if h.algorithm == AlgorithmArgon2id {
		return hashArgon2id(plain)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *Hasher) Verify(plain, hash string) (bool, error) {
	if strings.HasPrefix(hash, argon2Prefix) {
		return verifyArgon2id(plain, hash)
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

func hashArgon2id(plain string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2id(plain, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("%w: unexpected segment count", ErrInvalidHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("%w: unsupported argon2 version %d", ErrInvalidHash, version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if memory == 0 || memory > argon2MaxMemory {
		return false, fmt.Errorf("%w: memory %d out of range", ErrInvalidHash, memory)
	}
	if time == 0 || time > argon2MaxTime {
		return false, fmt.Errorf("%w: iterations %d out of range", ErrInvalidHash, time)
	}
	if threads == 0 || threads > 255 {
		return false, fmt.Errorf("%w: parallelism %d out of range", ErrInvalidHash, threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(expected) == 0 || len(expected) > 1024 {
		return false, fmt.Errorf("%w: key length %d", ErrInvalidHash, len(expected))
	}

	computed := argon2.IDKey([]byte(plain), salt, time, memory, uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		algorithm PasswordAlgorithm
		prefix    string
	}{
		{name: "bcrypt", algorithm: AlgorithmBcrypt, prefix: "$2a$"},
		{name: "default is bcrypt", algorithm: "", prefix: "$2a$"},
		{name: "argon2id", algorithm: AlgorithmArgon2id, prefix: "$argon2id$v=19$m=65536,t=1,p=4$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher, err := NewHasher(tt.algorithm, WithBcryptCost(bcrypt.MinCost))
			require.NoError(t, err)

			hash, err := hasher.Hash("correct-horse")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, tt.prefix), hash)

			ok, err := hasher.Verify("correct-horse", hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = hasher.Verify("battery-staple", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_SaltsEveryHash(t *testing.T) {
	hasher, err := NewHasher(AlgorithmArgon2id)
	require.NoError(t, err)

	first, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	second, err := hasher.Hash("correct-horse")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHasher_VerifiesEitherAlgorithm(t *testing.T) {
	bcryptHasher, err := NewHasher(AlgorithmBcrypt, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	argonHasher, err := NewHasher(AlgorithmArgon2id)
	require.NoError(t, err)

	legacy, err := bcryptHasher.Hash("correct-horse")
	require.NoError(t, err)

	ok, err := argonHasher.Verify("correct-horse", legacy)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_Errors(t *testing.T) {
	_, err := NewHasher("md5")
	require.Error(t, err)

	_, err = NewHasher(AlgorithmBcrypt, WithBcryptCost(bcrypt.MaxCost+1))
	require.Error(t, err)

	hasher, err := NewHasher(AlgorithmBcrypt, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	_, err = hasher.Hash("")
	require.ErrorIs(t, err, ErrEmptyPassword)

	for _, hash := range []string{
		"plaintext",
		"$argon2id$v=19$m=65536,t=1,p=4$onlysalt",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5",
		"$argon2id$v=19$m=4294967295,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=100000,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$a2V5",
	} {
		ok, err := hasher.Verify("correct-horse", hash)
		assert.False(t, ok, hash)
		assert.ErrorIs(t, err, ErrInvalidHash, hash)
	}
}

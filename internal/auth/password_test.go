package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "s3cret-pass", hash, "hash must never equal the plaintext")

	// A second hash of the same input uses a fresh salt
	hash2, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword("correct horse", hash))
	assert.Error(t, VerifyPassword("wrong horse", hash))
	assert.Error(t, VerifyPassword("", hash))
}

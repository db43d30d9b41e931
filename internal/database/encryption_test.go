package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := newEncryptor("")
	require.NoError(t, err)
	assert.False(t, enc.Enabled())

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = enc.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := newEncryptor(testSecret)
	require.NoError(t, err)

	first, err := enc.Encrypt("the derivative of x^2")
	require.NoError(t, err)
	second, err := enc.Encrypt("the derivative of x^2")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "nonces must differ")

	plain, err := enc.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "the derivative of x^2", plain)
}

func TestEncryptor_EmptyStaysEmpty(t *testing.T) {
	enc, err := newEncryptor(testSecret)
	require.NoError(t, err)

	out, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEncryptor_DecryptErrors(t *testing.T) {
	enc, err := newEncryptor(testSecret)
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("AAAA")
	assert.ErrorContains(t, err, "too short")

	other, err := newEncryptor("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)
	sealed, err := other.Encrypt("secret")
	require.NoError(t, err)
	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)
}

package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestNewBoxRejectsBadKeys(t *testing.T) {
	_, err := NewBox("not-base64!!!")
	require.Error(t, err)

	_, err = NewBox(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	ct, err := box.Encrypt("p@ssw0rd-with-entropy")
	require.NoError(t, err)
	require.NotContains(t, ct, "p@ssw0rd")

	pt, err := box.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "p@ssw0rd-with-entropy", pt)

	// Ciphertexts are nonce-randomized.
	ct2, err := box.Encrypt("p@ssw0rd-with-entropy")
	require.NoError(t, err)
	require.NotEqual(t, ct, ct2)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)
	ct, err := box.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewBox(base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210")))
	require.NoError(t, err)
	_, err = other.Decrypt(ct)
	require.Error(t, err)

	_, err = box.Decrypt("garbage-without-separator")
	require.Error(t, err)
}

func TestTokenEntropy(t *testing.T) {
	a, err := Token(32)
	require.NoError(t, err)
	b, err := Token(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.GreaterOrEqual(t, len(a), 43) // 32 bytes base64url

	pw, err := NewDBPassword()
	require.NoError(t, err)
	require.NotContains(t, pw, "'")

	secret, err := NewAppSecret()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(secret), 64) // 48 bytes base64url
}

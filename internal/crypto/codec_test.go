package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestNew_RejectsBadKeyLength(t *testing.T) {
	_, err := New([]byte("short"))
	require.Error(t, err)

	_, err = New(bytes.Repeat([]byte{1}, 16))
	require.Error(t, err)

	_, err = New(testKey(1))
	require.NoError(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	c, err := New(testKey(7))
	require.NoError(t, err)

	for _, plaintext := range []string{
		"hi",
		"",
		"a longer message with spaces and punctuation!?",
		"unicode: привет 你好 🙂",
	} {
		ct, iv, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := c.Decrypt(ct, iv)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCodec_FreshIVPerCall(t *testing.T) {
	c, err := New(testKey(7))
	require.NoError(t, err)

	ct1, iv1, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	ct2, iv2, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, ct1, ct2)
}

func TestCodec_TamperDetected(t *testing.T) {
	c, err := New(testKey(7))
	require.NoError(t, err)

	ct, iv, err := c.Encrypt("secret")
	require.NoError(t, err)

	// flip one hex digit
	tampered := []byte(ct)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	_, err = c.Decrypt(string(tampered), iv)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDecryptionFailed, apperrors.CodeOf(err))
}

func TestCodec_KeyMismatch(t *testing.T) {
	c1, err := New(testKey(7))
	require.NoError(t, err)
	c2, err := New(testKey(8))
	require.NoError(t, err)

	ct, iv, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(ct, iv)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDecryptionFailed, apperrors.CodeOf(err))
}

func TestCodec_BadEncoding(t *testing.T) {
	c, err := New(testKey(7))
	require.NoError(t, err)

	_, err = c.Decrypt("not-hex", "also-not-hex")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDecryptionFailed, apperrors.CodeOf(err))
}

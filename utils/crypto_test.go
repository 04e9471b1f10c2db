package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sealAsProvider encrypts a request the way the far end does: AES-128-GCM
// with the given IV as nonce, ciphertext||tag base64 encoded.
func sealAsProvider(t *testing.T, plaintext, key, iv []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(gcm.Seal(nil, iv, plaintext, nil))
}

func TestInvertIV(t *testing.T) {
	iv := []byte{0x00, 0x01, 0x7F, 0x80, 0xFE, 0xFF}

	flipped := InvertIV(iv)
	assert.Equal(t, []byte{0xFF, 0xFE, 0x80, 0x7F, 0x01, 0x00}, flipped)

	// Applying the inversion twice reproduces the original bytes.
	assert.Equal(t, iv, InvertIV(flipped))
	// The input slice is never mutated.
	assert.Equal(t, byte(0x00), iv[0])
}

func TestOpenEnvelopeRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i)
	}
	payload := []byte(`{"version":"3.0","action":"INIT"}`)

	ciphertext := sealAsProvider(t, payload, key, iv)

	plaintext, err := OpenEnvelope(ciphertext, base64.StdEncoding.EncodeToString(iv), key)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
}

func TestOpenEnvelopeTamperedCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)
	ciphertext := sealAsProvider(t, []byte("hello"), key, iv)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01

	_, err = OpenEnvelope(base64.StdEncoding.EncodeToString(raw), base64.StdEncoding.EncodeToString(iv), key)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpenEnvelopeWrongKey(t *testing.T) {
	iv := make([]byte, 16)
	ciphertext := sealAsProvider(t, []byte("hello"), []byte("0123456789abcdef"), iv)

	_, err := OpenEnvelope(ciphertext, base64.StdEncoding.EncodeToString(iv), []byte("fedcba9876543210"))
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpenEnvelopeTooShort(t *testing.T) {
	iv := make([]byte, 16)
	_, err := OpenEnvelope(base64.StdEncoding.EncodeToString([]byte("tiny")), base64.StdEncoding.EncodeToString(iv), []byte("0123456789abcdef"))
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestSealEnvelopeUsesInvertedIV(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i * 3)
	}
	payload := map[string]string{"screen": "SELECT_DATE"}

	sealed, err := SealEnvelope(payload, key, iv)
	require.NoError(t, err)

	// The far end decrypts with the flipped request IV; it is never sent.
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	require.NoError(t, err)

	plaintext, err := gcm.Open(nil, InvertIV(iv), raw, nil)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(plaintext, &decoded))
	assert.Equal(t, payload, decoded)

	// Decrypting with the request IV itself must fail.
	_, err = gcm.Open(nil, iv, raw, nil)
	assert.Error(t, err)
}

func TestUnwrapKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sessionKey := []byte("0123456789abcdef")
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &priv.PublicKey, sessionKey, nil)
	require.NoError(t, err)

	key, err := UnwrapKey(base64.StdEncoding.EncodeToString(wrapped), priv)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, key)
}

func TestUnwrapKeyFailures(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = UnwrapKey("not base64 !!!", priv)
	assert.ErrorIs(t, err, ErrKeyUnwrap)

	_, err = UnwrapKey(base64.StdEncoding.EncodeToString([]byte("garbage")), priv)
	assert.ErrorIs(t, err, ErrKeyUnwrap)

	_, err = UnwrapKey("", nil)
	assert.ErrorIs(t, err, ErrNoPrivateKey)
}

func TestLoadFlowPrivateKeyMissing(t *testing.T) {
	_, err := LoadFlowPrivateKey()
	assert.ErrorIs(t, err, ErrNoPrivateKey)
}

package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"waflow/config"
)

var (
	// ErrNoPrivateKey means FLOW_PRIVATE_KEY is missing from configuration.
	ErrNoPrivateKey = errors.New("flow private key is not configured")
	// ErrKeyUnwrap means the wrapped AES key could not be decrypted.
	ErrKeyUnwrap = errors.New("failed to unwrap session key")
	// ErrAuthentication means the GCM tag check failed.
	ErrAuthentication = errors.New("ciphertext authentication failed")
)

// LoadFlowPrivateKey parses the configured PEM private key. Fails fast when
// the key is absent so encrypted requests are rejected before any store work.
func LoadFlowPrivateKey() (*rsa.PrivateKey, error) {
	pemText := config.AppConfig.WhatsApp.FlowPrivateKey
	if pemText == "" {
		return nil, ErrNoPrivateKey
	}
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("%w: invalid PEM", ErrNoPrivateKey)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrNoPrivateKey)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPrivateKey, err)
	}
	return key, nil
}

// UnwrapKey decrypts the base64 RSA-OAEP wrapped AES session key.
func UnwrapKey(wrappedKeyB64 string, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrNoPrivateKey
	}
	wrapped, err := base64.StdEncoding.DecodeString(wrappedKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	return key, nil
}

// OpenEnvelope decrypts a base64 AES-128-GCM payload. The final 16 bytes of
// the decoded ciphertext are the authentication tag.
func OpenEnvelope(ciphertextB64, ivB64 string, key []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrAuthentication)
	}

	plaintext, err := gcm.Open(nil, iv, data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plaintext, nil
}

// SealEnvelope encrypts the JSON form of payload for the response leg. The
// provider expects the response IV to be the request IV with every bit
// flipped; the IV itself is not transmitted, the far end reconstructs it.
func SealEnvelope(payload interface{}, key, requestIV []byte) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key, len(requestIV))
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, InvertIV(requestIV), plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// InvertIV flips every bit of the IV. Applying it twice reproduces the
// original bytes.
func InvertIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = b ^ 0xFF
	}
	return flipped
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	if nonceSize > 0 && nonceSize != 12 {
		return cipher.NewGCMWithNonceSize(block, nonceSize)
	}
	return cipher.NewGCM(block)
}

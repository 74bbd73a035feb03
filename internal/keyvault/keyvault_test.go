// Copyright 2025 Certen Protocol
//
// Unit tests for the KeyVault.

package keyvault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-32-byte-or-longer-master-secret!!"

func TestNew_RejectsShortMasterSecret(t *testing.T) {
	_, err := New("too-short")
	require.ErrorIs(t, err, ErrMasterSecretTooShort)
}

func TestEncryptDecrypt_RoundTrips(t *testing.T) {
	v, err := New(testSecret)
	require.NoError(t, err)

	plain := "0xdeadbeefcafebabe"
	enc, err := v.Encrypt(plain)
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(enc, ":")), "encrypted format must be iv:tag:ciphertext")

	out, err := v.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, plain, out)
}

func TestEncrypt_IsNonDeterministic(t *testing.T) {
	v, err := New(testSecret)
	require.NoError(t, err)

	enc1, err := v.Encrypt("same-plaintext")
	require.NoError(t, err)
	enc2, err := v.Encrypt("same-plaintext")
	require.NoError(t, err)
	require.NotEqual(t, enc1, enc2, "random nonce per call must vary the ciphertext")
}

func TestDecrypt_DetectsTamperedCiphertext(t *testing.T) {
	v, err := New(testSecret)
	require.NoError(t, err)

	enc, err := v.Encrypt("sensitive-key-material")
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	parts[2] = flipLastHexNibble(parts[2])
	tampered := strings.Join(parts, ":")

	_, err = v.Decrypt(tampered)
	require.Error(t, err)
	var cryptoErr *CryptoError
	require.ErrorAs(t, err, &cryptoErr)
}

func TestDecrypt_DetectsTamperedTag(t *testing.T) {
	v, err := New(testSecret)
	require.NoError(t, err)

	enc, err := v.Encrypt("sensitive-key-material")
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	parts[1] = flipLastHexNibble(parts[1])
	tampered := strings.Join(parts, ":")

	_, err = v.Decrypt(tampered)
	require.Error(t, err)
}

func TestDecrypt_RejectsMalformedInput(t *testing.T) {
	v, err := New(testSecret)
	require.NoError(t, err)

	_, err = v.Decrypt("not-the-right-shape")
	require.Error(t, err)

	_, err = v.Decrypt("zz:tag:ciphertext")
	require.Error(t, err)
}

func TestCache_LoadGetClear(t *testing.T) {
	v, err := New(testSecret)
	require.NoError(t, err)

	_, ok := v.Get("EVM")
	require.False(t, ok)

	v.LoadInto("EVM", "0xprivatekey")
	key, ok := v.Get("EVM")
	require.True(t, ok)
	require.Equal(t, "0xprivatekey", key)

	v.ClearAll()
	_, ok = v.Get("EVM")
	require.False(t, ok)
}

func flipLastHexNibble(hexStr string) string {
	if len(hexStr) == 0 {
		return hexStr
	}
	b := []byte(hexStr)
	last := b[len(b)-1]
	if last == '0' {
		b[len(b)-1] = '1'
	} else {
		b[len(b)-1] = '0'
	}
	return string(b)
}

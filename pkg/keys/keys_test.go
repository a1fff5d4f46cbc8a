package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func generate(t *testing.T, role Role) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair(rand.Reader, role, DefaultKeySize, testTime)
	require.NoError(t, err)
	return kp
}

func TestGenerateKeyPair(t *testing.T) {
	kp := generate(t, RoleAuthentication)

	assert.Equal(t, RoleAuthentication, kp.Role())
	assert.Equal(t, DefaultKeySize, kp.Bits())
	assert.Equal(t, testTime, kp.CreatedAt())
	assert.Equal(t, DefaultKeySize, kp.PublicKey().N.BitLen())
	require.NoError(t, kp.PrivateKey().Validate())
}

func TestGenerateKeyPair_InvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		role Role
		bits int
	}{
		{"unknown role", Role("Z"), DefaultKeySize},
		{"too small", RoleSignature, 1024},
		{"too large", RoleSignature, 8192},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateKeyPair(rand.Reader, tt.role, tt.bits, testTime)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrKeyGeneration)
		})
	}
}

func TestGenerateKeyPair_NilEntropy(t *testing.T) {
	_, err := GenerateKeyPair(nil, RoleEncryption, DefaultKeySize, testTime)
	assert.ErrorIs(t, err, ErrKeyGeneration)
}

func TestRoleVersion(t *testing.T) {
	assert.Equal(t, "A006", RoleSignature.Version())
	assert.Equal(t, "E002", RoleEncryption.Version())
	assert.Equal(t, "X002", RoleAuthentication.Version())
	assert.Equal(t, "", Role("Q").Version())
	assert.False(t, Role("Q").IsValid())
}

func TestSignVerify(t *testing.T) {
	for _, role := range []Role{RoleSignature, RoleAuthentication} {
		t.Run(role.String(), func(t *testing.T) {
			kp := generate(t, role)

			for i := 0; i < 3; i++ {
				digest := sha256.Sum256([]byte(fmt.Sprintf("order data %d", i)))
				sig, err := Sign(rand.Reader, kp, digest[:])
				require.NoError(t, err)
				assert.NoError(t, Verify(role, kp.PublicKey(), digest[:], sig))

				other := sha256.Sum256([]byte("tampered"))
				assert.ErrorIs(t, Verify(role, kp.PublicKey(), other[:], sig), ErrCrypto)
			}
		})
	}
}

func TestSign_AuthenticationIsDeterministic(t *testing.T) {
	kp := generate(t, RoleAuthentication)
	digest := sha256.Sum256([]byte("header"))

	first, err := Sign(rand.Reader, kp, digest[:])
	require.NoError(t, err)
	second, err := Sign(rand.Reader, kp, digest[:])
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSign_EncryptionKeyRejected(t *testing.T) {
	kp := generate(t, RoleEncryption)
	digest := sha256.Sum256([]byte("x"))

	_, err := Sign(rand.Reader, kp, digest[:])
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestSign_BadDigestLength(t *testing.T) {
	kp := generate(t, RoleAuthentication)
	_, err := Sign(rand.Reader, kp, []byte("short"))
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestEncryptDecrypt(t *testing.T) {
	kp := generate(t, RoleEncryption)

	for _, plaintext := range [][]byte{
		[]byte("0123456789abcdef"),
		{},
		[]byte("transaction key material"),
	} {
		ciphertext, err := Encrypt(rand.Reader, kp.PublicKey(), plaintext)
		require.NoError(t, err)

		decrypted, err := Decrypt(kp, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, len(plaintext), len(decrypted))
		assert.Equal(t, string(plaintext), string(decrypted))
	}
}

func TestDecrypt_MismatchedKey(t *testing.T) {
	kp := generate(t, RoleEncryption)
	other := generate(t, RoleEncryption)

	ciphertext, err := Encrypt(rand.Reader, kp.PublicKey(), []byte("0123456789abcdef"))
	require.NoError(t, err)

	_, err = Decrypt(other, ciphertext)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestDecrypt_Malformed(t *testing.T) {
	kp := generate(t, RoleEncryption)

	_, err := Decrypt(kp, []byte("not a ciphertext"))
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestPublicKeyDigest(t *testing.T) {
	pub := &rsa.PublicKey{N: big.NewInt(0x0abc), E: 65537}

	expected := sha256.Sum256([]byte("10001 abc"))
	assert.Equal(t, expected[:], PublicKeyDigest(pub))
	assert.Nil(t, PublicKeyDigest(nil))
}

func TestNewKeyPair(t *testing.T) {
	generated := generate(t, RoleSignature)

	restored, err := NewKeyPair(RoleSignature, generated.PrivateKey(), testTime)
	require.NoError(t, err)
	assert.Equal(t, generated.Bits(), restored.Bits())

	_, err = NewKeyPair(RoleSignature, nil, testTime)
	assert.Error(t, err)
}

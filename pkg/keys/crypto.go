package keys

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"
)

// pssOptions are the A006 parameters: SHA-256 with a 32 byte salt
var pssOptions = &rsa.PSSOptions{SaltLength: 32, Hash: crypto.SHA256}

// Sign signs a SHA-256 digest with the key pair.
// The padding is chosen by role: PSS for signature keys, PKCS#1 v1.5 for
// authentication keys. Encryption keys cannot sign.
func Sign(random io.Reader, kp *KeyPair, digest []byte) ([]byte, error) {
	if kp == nil {
		return nil, fmt.Errorf("%w: key pair is required", ErrCrypto)
	}
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrCrypto, sha256.Size, len(digest))
	}

	var (
		sig []byte
		err error
	)
	switch kp.role {
	case RoleSignature:
		sig, err = rsa.SignPSS(random, kp.key, crypto.SHA256, digest, pssOptions)
	case RoleAuthentication:
		sig, err = rsa.SignPKCS1v15(nil, kp.key, crypto.SHA256, digest)
	default:
		return nil, fmt.Errorf("%w: %s keys cannot sign", ErrCrypto, kp.role)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrCrypto, err)
	}
	return sig, nil
}

// Verify checks a signature over a SHA-256 digest made with a key of the given role.
// It returns nil when the signature is valid.
func Verify(role Role, pub *rsa.PublicKey, digest, signature []byte) error {
	if pub == nil {
		return fmt.Errorf("%w: public key is required", ErrCrypto)
	}

	var err error
	switch role {
	case RoleSignature:
		err = rsa.VerifyPSS(pub, crypto.SHA256, digest, signature, pssOptions)
	case RoleAuthentication:
		err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, signature)
	default:
		return fmt.Errorf("%w: %s keys cannot verify", ErrCrypto, role)
	}
	if err != nil {
		return fmt.Errorf("%w: verify: %v", ErrCrypto, err)
	}
	return nil
}

// Encrypt encrypts plaintext to pub with RSAES-PKCS1-v1_5 (E002)
func Encrypt(random io.Reader, pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: public key is required", ErrCrypto)
	}
	ciphertext, err := rsa.EncryptPKCS1v15(random, pub, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", ErrCrypto, err)
	}
	return ciphertext, nil
}

// Decrypt decrypts an E002 ciphertext with the key pair
func Decrypt(kp *KeyPair, ciphertext []byte) ([]byte, error) {
	if kp == nil {
		return nil, fmt.Errorf("%w: key pair is required", ErrCrypto)
	}
	if kp.role != RoleEncryption {
		return nil, fmt.Errorf("%w: %s keys cannot decrypt", ErrCrypto, kp.role)
	}
	if len(ciphertext) != kp.key.Size() {
		return nil, fmt.Errorf("%w: ciphertext length %d does not match key size %d", ErrCrypto, len(ciphertext), kp.key.Size())
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, kp.key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrCrypto, err)
	}
	return plaintext, nil
}

// PublicKeyDigest returns the EBICS hash of an RSA public key:
// SHA-256 over "<exponent> <modulus>" in lowercase hex without leading zeros.
func PublicKeyDigest(pub *rsa.PublicKey) []byte {
	if pub == nil {
		return nil
	}
	s := fmt.Sprintf("%x %x", pub.E, pub.N)
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

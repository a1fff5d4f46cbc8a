package orderdata

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

// EncryptionVersion is the only supported order data encryption scheme
const EncryptionVersion = "E002"

// transactionKeySize is the AES-128 key length used by E002
const transactionKeySize = 16

// Common errors
var (
	ErrMalformedOrderData = errors.New("malformed order data")
	ErrMissingKey         = errors.New("required key is missing")
)

// Encrypted is an order data block as carried in a request or response
type Encrypted struct {
	// Version is the encryption version, always E002
	Version string
	// PubKeyDigest identifies the public key the transaction key was wrapped for
	PubKeyDigest []byte
	// TransactionKey is the RSA-wrapped AES key
	TransactionKey []byte
	// OrderData is the AES-CBC ciphertext of the compressed order data
	OrderData []byte
}

// Encode compresses and encrypts plaintext for the recipient's encryption key.
// A fresh transaction key is drawn from random for every call.
func Encode(random io.Reader, recipient *certificate.Certificate, plaintext []byte) (*Encrypted, error) {
	if recipient == nil || recipient.PublicKey == nil {
		return nil, fmt.Errorf("%w: recipient encryption certificate", ErrMissingKey)
	}
	if recipient.Role != keys.RoleEncryption {
		return nil, fmt.Errorf("%w: recipient certificate has role %s", keys.ErrCrypto, recipient.Role)
	}

	compressed, err := compression.NewCompressorWithLevel(compression.BestCompression).Compress(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to compress order data: %w", err)
	}

	key := make([]byte, transactionKeySize)
	if _, err := io.ReadFull(random, key); err != nil {
		return nil, fmt.Errorf("%w: transaction key: %v", keys.ErrCrypto, err)
	}

	ciphertext, err := encryptCBC(key, pad(compressed))
	if err != nil {
		return nil, err
	}

	wrapped, err := keys.Encrypt(random, recipient.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &Encrypted{
		Version:        EncryptionVersion,
		PubKeyDigest:   recipient.Digest(),
		TransactionKey: wrapped,
		OrderData:      ciphertext,
	}, nil
}

// Decode unwraps the transaction key with the participant encryption key pair,
// then decrypts and inflates the order data.
func Decode(kp *keys.KeyPair, enc *Encrypted) ([]byte, error) {
	return DecodeWithLimit(kp, enc, compression.DefaultMaxDecompressedSize)
}

// DecodeWithLimit is Decode with a bound on the inflated order data size
func DecodeWithLimit(kp *keys.KeyPair, enc *Encrypted, maxSize int64) ([]byte, error) {
	if kp == nil {
		return nil, fmt.Errorf("%w: participant encryption key", ErrMissingKey)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: no encrypted block", ErrMalformedOrderData)
	}
	if enc.Version != "" && enc.Version != EncryptionVersion {
		return nil, fmt.Errorf("%w: unsupported encryption version %q", keys.ErrCrypto, enc.Version)
	}
	if len(enc.PubKeyDigest) > 0 && !bytes.Equal(enc.PubKeyDigest, keys.PublicKeyDigest(kp.PublicKey())) {
		return nil, fmt.Errorf("%w: order data was encrypted for a different key", keys.ErrCrypto)
	}

	key, err := keys.Decrypt(kp, enc.TransactionKey)
	if err != nil {
		return nil, err
	}
	if len(key) != transactionKeySize {
		return nil, fmt.Errorf("%w: transaction key is %d bytes", keys.ErrCrypto, len(key))
	}

	padded, err := decryptCBC(key, enc.OrderData)
	if err != nil {
		return nil, err
	}
	compressed, err := unpad(padded)
	if err != nil {
		return nil, err
	}

	plaintext, err := compression.NewCompressor().WithMaxSize(maxSize).Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOrderData, err)
	}
	return plaintext, nil
}

// E002 uses a zero initialisation vector; every transaction key is used once.
var zeroIV = make([]byte, aes.BlockSize)

func encryptCBC(key, padded []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keys.ErrCrypto, err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", keys.ErrCrypto, len(ciphertext), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keys.ErrCrypto, err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, ciphertext)
	return out, nil
}

// pad applies ANSI X9.23 padding: zero bytes followed by the pad length.
// At least one byte is always added.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	out[len(out)-1] = byte(n)
	return out
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty padded block", keys.ErrCrypto)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", keys.ErrCrypto)
	}
	return data[:len(data)-n], nil
}

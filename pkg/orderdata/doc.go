// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package orderdata encodes and decodes EBICS order data.

# Encryption

Order data is protected with the E002 hybrid scheme. The plaintext is
compressed with zlib, padded to the AES block size (ANSI X9.23) and encrypted
with AES-128-CBC under a fresh transaction key. The transaction key is wrapped
with RSAES-PKCS1-v1_5 for the recipient's encryption key.

	enc, err := orderdata.Encode(rand.Reader, bankEncryptionCert, plaintext)
	plaintext, err := orderdata.Decode(participantEncryptionKey, enc)

Decoding with the wrong key pair or a corrupted transaction key fails with an
error wrapping keys.ErrCrypto. Data that decrypts but does not inflate fails
with ErrMalformedOrderData.

# Key Management Documents

The package also builds and reads the order data of the key management orders:

  - INI: SignaturePubKeyOrderData (S001 namespace)
  - HIA: HIARequestOrderData
  - HPB: HPBResponseOrderData
  - HPD: HPDResponseOrderData
  - HAA: HAAResponseOrderData

Documents that do not match the expected structure return errors wrapping
ErrMalformedOrderData.
*/
package orderdata

// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package keyring holds the key material of one EBICS subscriber.

The participant side keeps a key pair and certificate per role (signature,
encryption, authentication). The bank side keeps the bank's encryption and
authentication public keys once they have been retrieved.

# Lifecycle

The ring has no explicit state field. Its state is derived from what it holds:

	Empty                   no participant keys
	SignaturePending        signature key submitted (INI)
	AuthenticationPending   encryption and authentication keys submitted first (HIA)
	KeysSubmitted           all participant keys submitted
	Active                  bank keys retrieved (HPB)

Setters never overwrite. A participant role that is already populated is
rejected, and bank keys can only be stored once all participant keys exist.
Violations return errors wrapping ErrInvalidState.

# Storage

A ring is sealed into an opaque blob for storage and opened again with the same
passphrase:

	blob, err := ring.Seal()
	restored, err := keyring.Open(blob, passphrase)

The blob is a CBOR envelope holding an AES-256-GCM ciphertext under a key
derived from the passphrase with PBKDF2-SHA256.
*/
package keyring

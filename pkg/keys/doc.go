// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package keys provides the RSA key material used by an EBICS participant.

Every participant holds three key pairs, one per role:

  - Signature (A006): RSASSA-PSS with SHA-256, used for electronic signatures
  - Encryption (E002): RSAES-PKCS1-v1_5, used to unwrap transaction keys
  - Authentication (X002): RSASSA-PKCS1-v1_5 with SHA-256, used for AuthSignature

The padding scheme and digest are fixed by the role; callers never choose them.

# Key Generation

	kp, err := keys.GenerateKeyPair(rand.Reader, keys.RoleAuthentication, 2048, time.Now())

# Key Digests

Bank public key digests are SHA-256 hashes over the hexadecimal exponent and
modulus separated by a single space:

	digest := keys.PublicKeyDigest(&kp.PrivateKey().PublicKey)

# References

  - EBICS Specification 2.5, chapter 14 (key versions A006, E002, X002)
*/
package keys

// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package certificate wraps participant and bank public keys as certificates.

A participant certificate is created from a key pair when it is submitted to
the bank. Banks that accept self-signed certificates get an X.509 certificate
signed with the key itself. Banks that require certified keys get a PKCS#10
request instead; the resulting certificate is pending until a certification
authority issues it.

	cert, err := certificate.FromKeyPair(rand.Reader, kp, false, certificate.SubjectInfo{
	    CommonName: "PARTNER1 USER1",
	    Country:    "DE",
	})

Bank keys arrive either as a bare modulus and exponent or embedded in an X.509
certificate:

	bankX, err := certificate.FromPublicKey(keys.RoleAuthentication, pub, time.Now())
	bankE, err := certificate.FromX509(keys.RoleEncryption, der)

Certificates are values. Nothing in this package mutates a certificate after it
has been created.
*/
package certificate

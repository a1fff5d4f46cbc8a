// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the EBICS authentication signature.

Every authenticated request and response carries an AuthSignature element. It
is an XML digital signature whose single reference covers all elements marked
with authenticate="true" (the header and the body), selected by the XPointer
expression #xpointer(//*[@authenticate='true']).

# Signing

	err := security.SignDocument(doc, authenticationKeyPair)

The digest is SHA-256 over the concatenated canonical forms of the marked
elements in document order. SignedInfo is canonicalized the same way and
signed with the X002 key (RSASSA-PKCS1-v1_5, SHA-256). The AuthSignature is
inserted in front of the body element.

Signing has no random input, so identical documents produce identical
signatures.

# Verification

	err := security.VerifyDocument(doc, bankAuthenticationKey)

Verification recomputes the digest from the document and checks the signature
over SignedInfo. Failures wrap ErrSignatureInvalid, which in turn wraps
keys.ErrCrypto. A document without a signature returns ErrSignatureMissing.

# Canonicalization

Canonicalization is Exclusive XML Canonicalization without comments, provided
by github.com/leifj/signedxml. Canonicalize is the single routine used for
both signing and verification.

# Bank Certificates

Banks that issue X.509 certificates for their keys can be checked against a
trusted root pool before the keys are adopted:

	v := security.NewPoolValidator(roots)
	err := security.ValidateDER(v, bankCert.Raw, time.Now())

Failures wrap ErrCertificateUntrusted, ErrCertificateExpired or
ErrCertificateNotYetValid.

# References

  - EBICS Specification 2.5, chapter 5.5 (authentication signature)
  - Exclusive XML Canonicalization: https://www.w3.org/TR/xml-exc-c14n/
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core/
*/
package security

// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goebics implements an EBICS H004 client for electronic banking.

# Overview

go-ebics covers the subscriber side of the Electronic Banking Internet
Communication Standard: the key ceremony with the bank and the download of
account statements. Requests carry an XML-DSig AuthSignature; order data is
protected with hybrid RSA and AES encryption.

# Specifications Implemented

  - EBICS Specification 2.5 (protocol version H004)
  - Key versions A006 (RSASSA-PSS), X002 (RSASSA-PKCS1-v1_5), E002 (RSAES-PKCS1-v1_5 and AES-128-CBC)
  - Exclusive XML Canonicalization 1.0: https://www.w3.org/TR/xml-exc-c14n/

# Package Structure

	github.com/sirosfoundation/go-ebics/pkg/ebics       - Client facade, one method per operation
	github.com/sirosfoundation/go-ebics/pkg/keys        - RSA key pairs and role-specific primitives
	github.com/sirosfoundation/go-ebics/pkg/certificate - Self-signed certificates and bank key wrappers
	github.com/sirosfoundation/go-ebics/pkg/keyring     - Key ring with derived state and sealed storage format
	github.com/sirosfoundation/go-ebics/pkg/message     - Request builders for all envelope variants
	github.com/sirosfoundation/go-ebics/pkg/response    - Response parsing and return codes
	github.com/sirosfoundation/go-ebics/pkg/orderdata   - Order data encryption and key management documents
	github.com/sirosfoundation/go-ebics/pkg/security    - AuthSignature creation and verification
	github.com/sirosfoundation/go-ebics/pkg/compression - zlib compression of order data
	github.com/sirosfoundation/go-ebics/pkg/transport   - HTTPS transport

# Quick Start

	ring, _ := keyring.New(passphrase)
	client, _ := ebics.NewClient(ebics.ClientConfig{
	    Bank: ebics.Bank{URL: "https://ebics.example.com/ebicsweb", HostID: "EBIXHOST"},
	    User: ebics.User{PartnerID: "PARTNER1", UserID: "USER0001"},
	}, ring, transport.NewHTTPSClient(nil))

	resp, err := client.SubmitSignatureKey(ctx, time.Time{})

The ebics command in cmd/ebics wraps the client with YAML configuration and
file or MongoDB storage for the sealed key ring.
*/
package goebics

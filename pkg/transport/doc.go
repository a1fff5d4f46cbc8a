// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport delivers EBICS requests to the bank.

The Transport interface is the only network dependency of the protocol
engine; tests substitute an in-memory bank.

# TLS Configuration

The HTTPS client uses TLS 1.3 with fallback to TLS 1.2:

	config := transport.DefaultHTTPSConfig()
	// MinTLSVersion: TLS 1.2
	// MaxTLSVersion: TLS 1.3

# Client Usage

	client := transport.NewHTTPSClient(&transport.HTTPSConfig{
	    MinTLSVersion: transport.TLS12,
	    RootCAs:       certPool,
	    Timeout:       30 * time.Second,
	})

	body, err := client.Post(ctx, "https://ebics.example.com/ebicsweb", request)

Requests are sent as text/xml; charset=UTF-8. The body is returned regardless
of the HTTP status because EBICS reports errors through return codes in the
response document. Delivery and read failures wrap ErrTransport.

# References

  - EBICS Specification 2.5, chapter 11 (transport)
  - TLS 1.3 RFC 8446: https://datatracker.ietf.org/doc/html/rfc8446
*/
package transport

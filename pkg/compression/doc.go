// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides zlib compression for EBICS order data.

Order data is always deflated before it is encrypted or base64 encoded into a
request. Key management orders sent before the bank keys are known (INI, HIA)
are deflated and encoded without encryption.

# Compression

Compress order data before sending:

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(orderData)

Inflate received order data:

	plain, err := compressor.Decompress(compressed)

Corrupted or truncated streams return an error wrapping ErrMalformedStream.

# References

  - ZLIB RFC 1950: https://datatracker.ietf.org/doc/html/rfc1950
  - EBICS Specification 2.5, chapter 11 (compression of order data)
*/
package compression

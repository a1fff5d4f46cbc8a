// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message builds EBICS H004 request documents.

# Request Variants

Each order type maps to one of four envelope shapes:

  - ebicsHEVRequest: host probe (HEV), host ID only
  - ebicsUnsecuredRequest: key submission (INI, HIA) with deflated, base64
    encoded order data and no signature
  - ebicsNoPubKeyDigestsRequest: bank key retrieval (HPB), signed, empty body
  - ebicsRequest: downloads (HPD, HAA, STA, VMK), signed, with the digests of
    the bank keys the client expects

All builders share the same steps: create the envelope, write the static
header in schema order, attach the body, then sign. The signature is applied
by security.SignDocument, the single canonicalization routine.

# Determinism

Timestamp and nonce are inputs:

	nonce, err := message.NewNonce(rand.Reader)
	req, err := message.BuildSecured(message.Params{
	    Identity:    identity,
	    OrderType:   message.OrderSTA,
	    Timestamp:   now,
	    Nonce:       nonce,
	    DateRange:   &message.DateRange{Start: start, End: end},
	    BankDigests: digests,
	}, authKeyPair)

Building the same parameters twice produces byte-identical output.

# Date Ranges

A date range needs both a start and an end date, and the start must not be
after the end. Only statement orders (STA, VMK) accept a range.
*/
package message

// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package ebics is the client facade of the EBICS protocol engine.

A Client binds a bank, a subscriber, a key ring and a transport. Each
operation builds one request, posts it, interprets the response and applies
the follow-up step for that operation.

# Key Ceremony

A new subscriber walks the ring through its states:

	Empty -> SignaturePending -> KeysSubmitted -> Active

	resp, err := client.SubmitSignatureKey(ctx, time.Time{})      // INI
	resp, err = client.SubmitEncryptionAuthKeys(ctx, time.Time{}) // HIA
	// the bank activates the subscriber after receiving the initialisation letter
	resp, err = client.RetrieveBankKeys(ctx, time.Time{})          // HPB

New keys are generated before the request is built and stored only when the
bank answers with return code 000000. Operations called in the wrong state
fail with keyring.ErrInvalidState before anything is sent.

Bank keys delivered by HPB are adopted only after they are verified against
the response AuthSignature or against digests pinned in Bank.KeyDigests.

# Downloads

	resp, err := client.FetchStatement(ctx, ebics.ProductMT940, time.Time{}, &message.DateRange{
	    Start: start,
	    End:   end,
	})
	for _, tx := range resp.Transactions() {
	    fmt.Println(string(tx.OrderData))
	}

Downloads require an Active ring. The bank's AuthSignature is verified and
the order data decrypted with the participant encryption key.

A non-OK return code is not an error: the parsed response is returned and
the ring is left untouched. Errors are reserved for transport, parsing,
cryptographic and state failures. Nothing is retried.
*/
package ebics

// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package response interprets EBICS bank responses.

Parse recognises the three response envelopes:

  - ebicsHEVResponse: system return code and supported protocol versions
  - ebicsKeyManagementResponse: INI, HIA and HPB results
  - ebicsResponse: transaction results with optional segment information

Return codes are six-digit strings. A response is OK only when both the
technical code (header) and, when present, the business code (body) are
"000000". Structural problems surface as errors wrapping ErrMalformedResponse
and never as a return code.

Encrypted order data is exposed as an orderdata.Encrypted block; callers
decrypt it and record the result with SetDecryptedOrderData.
*/
package response

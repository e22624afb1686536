// Package token provides opaque token generation and hashing for pdfgate.
//
// Refresh tokens are stored only as hashes: HMAC-SHA256(token, key) when
// PDFGATE_TOKEN_HMAC_KEY is set, otherwise SHA-256(token) for development.
// Output is always a 64-char hex string.
//
// View tokens are opaque handles returned to the owner more than once, so
// they are generated here but stored in plaintext by the view session store.
package token

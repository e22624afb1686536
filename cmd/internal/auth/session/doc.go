// Package session implements pdfgate's login sessions.
//
// A session is a server-side row plus two tokens: a short-lived signed access
// token (PASETO v4.public by default, JWT HS256 when configured) and an opaque
// refresh token stored only as a hash (HMAC-SHA256 when PDFGATE_TOKEN_HMAC_KEY
// is set; otherwise SHA-256).
//
// Every authenticated request goes through Service.Transition, which re-reads
// the session row and, for non-admin sessions, the bound device's approval.
// A device that is no longer APPROVED ends the session permanently.
package session

// Package identity owns pdfgate's user accounts: the ADMIN/USER role model,
// credential storage, and the credential verifier used by login.
//
// Stores come in two flavours: PostgresStore for production and MemoryStore
// for tests and database-less development runs. Both enforce case-insensitive
// email uniqueness and hash passwords through cmd/security/password.
package identity

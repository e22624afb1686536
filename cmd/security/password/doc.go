// Package password provides password hashing and verification for pdfgate.
//
// New hashes are Argon2id in PHC form. Verification also accepts bcrypt
// hashes carried over from the previous deployment; callers are expected to
// re-hash those on the next successful login (see Config.NeedsRehash).
//
// Hash strings are treated as untrusted input: Verify refuses parameters
// that exceed reasonable bounds for either algorithm.
package password

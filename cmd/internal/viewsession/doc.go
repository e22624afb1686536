// Package viewsession issues short-lived view tokens for shared documents
// and resolves them back to document bytes.
//
// A view token is the only handle a client ever holds for file content.
// It is random, it is unrelated to the storage key, and it is re-validated
// against its share on every read: revoking a share, or re-granting it
// after a revocation, makes every earlier token resolve as gone.
package viewsession

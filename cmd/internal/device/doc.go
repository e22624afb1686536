// Package device implements the device-approval gate layered onto login.
//
// Each (user, device id) pair has one Record moving through
// PENDING -> APPROVED | REJECTED, APPROVED -> REVOKED, REVOKED -> PENDING.
// At most MaxApproved records per user may be APPROVED at once; the limit is
// enforced when an admin approves, under a per-user lock held by the Store.
//
// Device ids are client-asserted. They identify a browser profile well
// enough for an approval workflow but are not an authentication factor.
package device

package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when a refresh token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session is expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrSessionInvalidated is returned when the session's device lost its
	// approval. The session row is revoked and cannot be refreshed.
	ErrSessionInvalidated = errors.New("session invalidated")

	// ErrRefreshReuseDetected is returned when a rotated (replaced) refresh token is presented again.
	// All sessions for the user have been revoked by the time it is returned.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Revocation reasons recorded on session rows.
const (
	ReasonLogout            = "logout"
	ReasonRotation          = "rotation"
	ReasonReuseDetected     = "reuse_detected"
	ReasonDeviceInvalidated = "device_invalidated"
	ReasonDeviceRevoked     = "device_revoked"
	ReasonUserDeleted       = "user_deleted"
)

func deviceReason(reason *string) bool {
	return reason != nil && (*reason == ReasonDeviceInvalidated || *reason == ReasonDeviceRevoked)
}

package library

import "time"

// Upload is a stored document. StorageKey is server-internal and must never
// be rendered to clients.
type Upload struct {
	ID           string
	StorageKey   string
	OriginalName string
	Size         int64
	Digest       string
	UploadedBy   string
	CreatedAt    time.Time
}

// UploadSummary is an Upload with its active share count, for admin listings.
type UploadSummary struct {
	Upload
	ActiveShares int
}

// Share grants one user access to one upload. A nil RevokedAt means active.
type Share struct {
	ID        string
	UploadID  string
	UserID    string
	SharedAt  time.Time
	RevokedAt *time.Time
}

func (s Share) Active() bool { return s.RevokedAt == nil }

// SharedDocument is an active share joined with its upload.
type SharedDocument struct {
	Share  Share
	Upload Upload
}

package api

import "time"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type grantShareRequest struct {
	UserID string `json:"user_id"`
}

type deviceActionRequest struct {
	Action string `json:"action"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User     userResponse `json:"user"`
	DeviceID string       `json:"device_id,omitempty"`
}

type documentResponse struct {
	ShareID      string    `json:"share_id"`
	UploadID     string    `json:"upload_id"`
	OriginalName string    `json:"original_name"`
	FileSize     int64     `json:"file_size"`
	SharedAt     time.Time `json:"shared_at"`
	SharedBy     string    `json:"shared_by"`
}

type documentsResponse struct {
	Documents []documentResponse `json:"documents"`
}

type viewSessionResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Reused     bool      `json:"reused"`
	ContentURL string    `json:"content_url"`
}

type deviceResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	UserEmail   string     `json:"user_email"`
	UserName    string     `json:"user_name"`
	DeviceID    string     `json:"device_id"`
	Label       string     `json:"label"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at"`
	RejectedAt  *time.Time `json:"rejected_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

type devicesResponse struct {
	Devices []deviceResponse `json:"devices"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}

type createUserResponse struct {
	User   userResponse `json:"user"`
	Shared int          `json:"shared"`
}

type uploadResponse struct {
	ID            string    `json:"id"`
	OriginalName  string    `json:"original_name"`
	Size          int64     `json:"size"`
	Digest        string    `json:"digest,omitempty"`
	UploadedBy    string    `json:"uploaded_by,omitempty"`
	UploaderName  string    `json:"uploader_name,omitempty"`
	UploaderEmail string    `json:"uploader_email,omitempty"`
	ActiveShares  *int      `json:"active_shares,omitempty"`
	SharedWith    *int      `json:"shared_with,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type uploadsResponse struct {
	Uploads []uploadResponse `json:"uploads"`
}

type shareResponse struct {
	ID        string     `json:"id"`
	UploadID  string     `json:"upload_id"`
	UserID    string     `json:"user_id"`
	UserEmail string     `json:"user_email,omitempty"`
	UserName  string     `json:"user_name,omitempty"`
	SharedAt  time.Time  `json:"shared_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	Active    bool       `json:"active"`
}

type sharesResponse struct {
	Shares []shareResponse `json:"shares"`
}

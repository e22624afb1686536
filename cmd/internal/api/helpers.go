package api

import (
	"context"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/device"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/viewsession"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
}

func toViewSessionResponse(v viewsession.Issued) viewSessionResponse {
	return viewSessionResponse{
		Token:      v.Session.Token,
		ExpiresAt:  v.Session.ExpiresAt,
		Reused:     v.Reused,
		ContentURL: "/content/" + v.Session.Token,
	}
}

func toDeviceResponse(rec device.Record, u identity.User) deviceResponse {
	return deviceResponse{
		ID:          rec.ID,
		UserID:      rec.UserID,
		UserEmail:   u.Email,
		UserName:    u.Name,
		DeviceID:    rec.DeviceID,
		Label:       rec.Label,
		Status:      string(rec.Status),
		RequestedAt: rec.RequestedAt,
		ApprovedAt:  rec.ApprovedAt,
		RejectedAt:  rec.RejectedAt,
		RevokedAt:   rec.RevokedAt,
		LastLoginAt: rec.LastLoginAt,
	}
}

func toShareResponse(sh library.Share, u identity.User) shareResponse {
	return shareResponse{
		ID:        sh.ID,
		UploadID:  sh.UploadID,
		UserID:    sh.UserID,
		UserEmail: u.Email,
		UserName:  u.Name,
		SharedAt:  sh.SharedAt,
		RevokedAt: sh.RevokedAt,
		Active:    sh.Active(),
	}
}

// userCache memoizes user lookups for list endpoints. Users that no longer
// exist resolve to the zero User.
type userCache struct {
	users identity.Store
	seen  map[string]identity.User
}

func newUserCache(users identity.Store) *userCache {
	return &userCache{users: users, seen: make(map[string]identity.User)}
}

func (c *userCache) get(ctx context.Context, id string) (identity.User, error) {
	if u, ok := c.seen[id]; ok {
		return u, nil
	}
	u, err := c.users.GetUserByID(ctx, id)
	if err != nil {
		if !identity.IsNotFound(err) {
			return identity.User{}, err
		}
		u = identity.User{ID: id}
	}
	c.seen[id] = u
	return u, nil
}

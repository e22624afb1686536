package session

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DeviceGate answers whether a non-admin session's device is still approved.
type DeviceGate interface {
	IsApproved(ctx context.Context, userID, deviceID string) (bool, error)
}

// Service implements the high-level session operations.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
	gate   DeviceGate
	log    *slog.Logger
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	Subject      Subject
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService wires the store, token manager and device gate. A nil gate
// disables device re-verification, which only tests should do.
func NewService(cfg Config, store Store, tokens AccessTokenManager, gate DeviceGate, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, store: store, tokens: tokens, gate: gate, log: log}
}

// IssueSession creates a new session row and returns fresh tokens.
// Only the refresh token hash is persisted.
func (s *Service) IssueSession(ctx context.Context, now time.Time, subj Subject, client ClientContext) (Issued, error) {
	if subj.Role.IsAdmin() {
		subj.DeviceID = ""
	}

	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	sessionID, err := s.store.Create(ctx, now, subj, client, refreshHash, refreshExp)
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(subj, sessionID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    sessionID,
		Subject:      subj,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
	}, nil
}

// Authorize verifies an access token and runs Transition on its claims.
func (s *Service) Authorize(ctx context.Context, token string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return AccessClaims{}, err
	}
	return s.Transition(ctx, claims, now)
}

// Transition is the per-request session state check. In order:
//
//  1. The session row must exist, belong to the claimed user, and be neither
//     revoked, rotated nor expired.
//  2. For non-admin sessions bound to a device, the device must still be
//     APPROVED. Otherwise the row is revoked with ReasonDeviceInvalidated and
//     ErrSessionInvalidated is returned; the session never becomes valid again.
//
// Role and device are taken from the row, not the token.
func (s *Service) Transition(ctx context.Context, claims AccessClaims, now time.Time) (AccessClaims, error) {
	row, err := s.store.GetByID(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, err
	}

	if row.UserID != claims.UserID || row.Role != claims.Role || row.DeviceID != claims.DeviceID {
		return AccessClaims{}, ErrInvalidToken
	}
	if row.RevokedAt != nil {
		if deviceReason(row.RevocationReason) {
			return AccessClaims{}, ErrSessionInvalidated
		}
		return AccessClaims{}, ErrSessionRevoked
	}
	if row.ReplacedBySessionID != nil {
		return AccessClaims{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return AccessClaims{}, ErrSessionExpired
	}

	if !row.Role.IsAdmin() && row.DeviceID != "" && s.gate != nil {
		ok, err := s.gate.IsApproved(ctx, row.UserID, row.DeviceID)
		if err != nil {
			return AccessClaims{}, err
		}
		if !ok {
			if rerr := s.store.Revoke(ctx, now, row.ID, ReasonDeviceInvalidated); rerr != nil {
				s.log.Error("session.invalidate.fail", "session_id", row.ID, "err", rerr)
			}
			s.log.Info("session.invalidated", "session_id", row.ID, "user_id", row.UserID)
			return AccessClaims{}, ErrSessionInvalidated
		}
	}

	return claims, nil
}

// RevokeSession revokes a single session by ID (logout).
func (s *Service) RevokeSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Revoke(ctx, now, sessionID, ReasonLogout)
}

// RevokeAll revokes all sessions for a user.
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID, reason string) (int, error) {
	return s.store.RevokeAll(ctx, now, userID, reason)
}

// RevokeByDevice ends every live session bound to (userID, deviceID).
func (s *Service) RevokeByDevice(ctx context.Context, userID, deviceID, reason string, now time.Time) (int, error) {
	return s.store.RevokeByDevice(ctx, now, userID, deviceID, reason)
}

// TouchSession updates last_used_at for a session (best-effort).
func (s *Service) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}

// RotateRefresh exchanges a refresh token for a new session with reuse
// detection, then runs Transition so a session whose device lost approval
// cannot be revived by refreshing.
func (s *Service) RotateRefresh(ctx context.Context, now time.Time, refreshTokenPlain string, client ClientContext) (Issued, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	newPlain, newHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	row, err := s.store.Rotate(ctx, now, RotateInput{
		OldRefreshHash: hashRefreshTokenHex(refreshTokenPlain),
		NewRefreshHash: newHash,
		NewExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
		Client:         client,
	})
	if err != nil {
		return Issued{}, err
	}

	subj := row.Subject()
	accessToken, accessExp, err := s.tokens.Issue(subj, row.ID, now)
	if err != nil {
		return Issued{}, err
	}

	claims := AccessClaims{UserID: subj.UserID, SessionID: row.ID, Role: subj.Role, DeviceID: subj.DeviceID}
	if _, err := s.Transition(ctx, claims, now); err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    row.ID,
		Subject:      subj,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newPlain,
		RefreshExp:   row.ExpiresAt,
	}, nil
}

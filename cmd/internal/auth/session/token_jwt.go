package session

import (
	"time"

	"pdfgate/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	DeviceID  string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewJWTManager builds an HS256 AccessTokenManager for deployments that
// need tokens readable by off-the-shelf JWT tooling.
func NewJWTManager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, ErrConfig
	}
	return &jwtManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.JWTSecret),
	}, nil
}

func (m *jwtManager) Issue(subj Subject, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)
	claims := jwtClaims{
		SessionID: sessionID,
		Role:      string(subj.Role),
		DeviceID:  subj.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subj.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(token string, now time.Time) (AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	role, ok := identity.ParseRole(claims.Role)
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		Role:      role,
		DeviceID:  claims.DeviceID,
		Issuer:    claims.Issuer,
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return AccessClaims{}, ErrInvalidToken
	}
	out.ExpiresAt = claims.ExpiresAt.Time
	out.IssuedAt = claims.IssuedAt.Time
	return out, nil
}

package identity

import (
	"context"
	"log/slog"
	"time"
)

// Verifier checks email/password pairs against the store.
//
// Unknown emails and wrong passwords are indistinguishable: both return
// ErrInvalidCredentials, and an unknown email still pays for one hash
// verification against a dummy hash.
type Verifier struct {
	store  Store
	hasher PasswordHasher
	log    *slog.Logger
	dummy  string
}

// NewVerifier precomputes the dummy hash with the same hasher used for real accounts.
func NewVerifier(store Store, hasher PasswordHasher, log *slog.Logger) (*Verifier, error) {
	if store == nil {
		return nil, invalid("identity.NewVerifier", "nil store")
	}
	if hasher == nil {
		hasher = DefaultHasher()
	}
	if log == nil {
		log = slog.Default()
	}
	dummy, err := hasher.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	return &Verifier{store: store, hasher: hasher, log: log, dummy: dummy}, nil
}

// Verify returns the account when the password matches. Legacy or weaker
// hashes are upgraded in place on success; upgrade failures are logged, not returned.
func (v *Verifier) Verify(ctx context.Context, email, plain string, now time.Time) (User, error) {
	const op = "identity.Verify"

	if email == "" || plain == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	ua, err := v.store.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			_, _ = v.hasher.Verify(v.dummy, plain)
			return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
		}
		return User{}, err
	}

	ok, err := v.hasher.Verify(ua.PasswordHash, plain)
	if err != nil || !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	if v.hasher.NeedsRehash(ua.PasswordHash) {
		if fresh, herr := v.hasher.Hash(plain); herr == nil {
			if uerr := v.store.UpdatePasswordHash(ctx, ua.User.ID, fresh, now); uerr != nil {
				v.log.Warn("identity.rehash.fail", "user_id", ua.User.ID, "err", uerr)
			}
		} else {
			// Legacy passwords may predate the current policy; keep the old hash.
			v.log.Debug("identity.rehash.skip", "user_id", ua.User.ID, "reason", herr.Error())
		}
	}

	return ua.User, nil
}

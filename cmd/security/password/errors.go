package password

import "errors"

// Policy and hash errors. identity maps the policy ones to invalid_input.
var (
	ErrPasswordTooShort      = errors.New("password: shorter than policy minimum")
	ErrPasswordTooLong       = errors.New("password: longer than policy maximum")
	ErrWeakPassword          = errors.New("password: too easy to guess")
	ErrPasswordContainsEmail = errors.New("password: derived from the account email")
	ErrInvalidHash           = errors.New("password: malformed or unsupported hash")
)

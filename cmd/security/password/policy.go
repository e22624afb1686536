package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minEmailFragment is the shortest local part ValidateFor compares against.
const minEmailFragment = 4

// commonPasswords are rejected when Policy.RejectVeryWeak is on. Entries are
// lower case; admins tend to hand these out with new reader accounts.
var commonPasswords = map[string]struct{}{
	"password":     {},
	"password1":    {},
	"password123":  {},
	"123456":       {},
	"12345678":     {},
	"123456789":    {},
	"qwerty":       {},
	"qwerty123":    {},
	"letmein":      {},
	"welcome1":     {},
	"changeme":     {},
	"changeme123":  {},
	"admin123":     {},
	"pdfgate":      {},
	"pdfgate123":   {},
	"readonly":     {},
	"iloveyou":     {},
	"11111111":     {},
	"000000000000": {},
}

// Validate checks length (in runes) and, when enabled, the weak list.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && guessable(password) {
		return ErrWeakPassword
	}
	return nil
}

// ValidateFor runs Validate and additionally refuses the account's own email
// address, or its local part with only digits or symbols appended.
func (c Config) ValidateFor(password, email string) error {
	if err := c.Validate(password); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	local, _, _ := strings.Cut(email, "@")
	pw := strings.ToLower(strings.TrimSpace(password))
	if pw == email {
		return ErrPasswordContainsEmail
	}
	stem := strings.TrimRightFunc(pw, func(r rune) bool { return !unicode.IsLetter(r) })
	if utf8.RuneCountInString(local) >= minEmailFragment && stem == local {
		return ErrPasswordContainsEmail
	}
	return nil
}

func guessable(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" || oneRune(s) {
		return true
	}
	// PIN-like
	if utf8.RuneCountInString(s) < 12 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return true
	}
	_, common := commonPasswords[strings.ToLower(s)]
	return common
}

func oneRune(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}

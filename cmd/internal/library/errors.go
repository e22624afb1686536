package library

import (
	"errors"
	"fmt"
)

// Sentinel error kinds.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("share_exists")
	ErrForbidden    = errors.New("forbidden")
	ErrTooLarge     = errors.New("upload_too_large")
)

type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// NotFoundError names the missing resource ("upload", "share", "user").
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError is returned by Grant when the pair already has an active share.
type ConflictError struct {
	Op       string
	UploadID string
	UserID   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: %v: upload %s user %s", e.Op, ErrConflict, e.UploadID, e.UserID)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func notFound(op, resource string) error { return NotFoundError{Op: op, Resource: resource} }

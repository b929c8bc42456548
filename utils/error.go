package utils

import "errors"

// Error kinds for the data layer. Operations wrap these with fmt.Errorf("%w: ...")
// so callers can classify failures with errors.Is while still getting a
// specific message naming the unmet precondition.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("record not found")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrAuthorization = errors.New("authorization failed")
	ErrStorage       = errors.New("storage failure")
)

func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsInvalidState(err error) bool  { return errors.Is(err, ErrInvalidState) }
func IsAuthorization(err error) bool { return errors.Is(err, ErrAuthorization) }
func IsStorage(err error) bool       { return errors.Is(err, ErrStorage) }

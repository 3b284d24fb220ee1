package errs

import "errors"

var (
	ErrEmailRequired          = errors.New("E0001: email is required")
	ErrInvalidEmailOrPassword = errors.New("E0003: invalid email or password")
	ErrDatabase               = errors.New("E0004: database error")
	ErrCryptographic          = errors.New("E0005: cryptographic failure")
	ErrJWT                    = errors.New("E0006: JWT failure")
	ErrEmailAddressFormat     = errors.New("E0008: email address format incorrect")
	ErrInvalidBody            = errors.New("E0009: request body invalid")
	ErrAlreadyExists          = errors.New("E0010: student already registered")
	ErrTokenExpired           = errors.New("E0011: token expired")
	ErrUnauthorized           = errors.New("E0012: unauthorized")
	ErrSamePassword           = errors.New("E0013: new password must differ from current password")
	ErrNotFound               = errors.New("E0014: student not found")
	ErrInvalidID              = errors.New("E0015: invalid ID")
	ErrNotAdmin               = errors.New("E0016: not admin")
	ErrCurrentPassword        = errors.New("E0017: current password incorrect")
	ErrMail                   = errors.New("E0018: error sending email")
	ErrInvalidResetToken      = errors.New("E0019: reset token invalid")
	ErrImportFile             = errors.New("E0021: import file unreadable")
)

package errors

import (
	"errors"
)

var (
	ErrDuplicateIdentity  = errors.New("identity already exists")
	ErrWeakCredential     = errors.New("password does not meet strength requirements")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrInvalidCredential  = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountUnconfirmed = errors.New("account is not confirmed")
	ErrRoleNotFound       = errors.New("role not found")
	ErrMalformedToken     = errors.New("malformed token")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrTokenExpired       = errors.New("token expired")
	ErrWrongTokenType     = errors.New("wrong token type")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// CodeOf maps an error to its stable code. The boundary layer resolves the
// code to a localized message; decision logic never branches on message text.
//
// Login paths only ever surface ErrInvalidCredential, so a caller cannot tell
// an unknown username from a wrong password.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateIdentity):
		return "DUPLICATE_IDENTITY"
	case errors.Is(err, ErrWeakCredential):
		return "WEAK_CREDENTIAL"
	case errors.Is(err, ErrInvalidCredential):
		return "AUTHENTICATION_FAILED"
	case errors.Is(err, ErrIdentityNotFound):
		return "IDENTITY_NOT_FOUND"
	case errors.Is(err, ErrAccountLocked):
		return "ACCOUNT_LOCKED"
	case errors.Is(err, ErrAccountUnconfirmed):
		return "ACCOUNT_UNCONFIRMED"
	case errors.Is(err, ErrRoleNotFound):
		return "ROLE_NOT_FOUND"
	case errors.Is(err, ErrMalformedToken):
		return "MALFORMED_TOKEN"
	case errors.Is(err, ErrInvalidSignature):
		return "INVALID_SIGNATURE"
	case errors.Is(err, ErrTokenExpired):
		return "TOKEN_EXPIRED"
	case errors.Is(err, ErrWrongTokenType):
		return "WRONG_TOKEN_TYPE"
	case errors.Is(err, ErrStorageUnavailable):
		return "STORAGE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

package service

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code returned in the response envelope.
type Code string

const (
	// Validation
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeInvalidQRCode Code = "INVALID_QR_CODE"
	CodeInvalidRole   Code = "INVALID_ROLE"

	// State conflicts
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeSessionExpired      Code = "SESSION_EXPIRED"
	CodeInvalidApproveNonce Code = "INVALID_APPROVE_NONCE"
	CodeInvalidTicket       Code = "INVALID_TICKET"
	CodeInviteNotFound      Code = "INVITE_NOT_FOUND"
	CodeInviteRevoked       Code = "INVITE_REVOKED"
	CodeInviteExhausted     Code = "INVITE_EXHAUSTED"
	CodeInviteExpired       Code = "INVITE_EXPIRED"
	CodeRoleBindingNotFound Code = "ROLE_BINDING_NOT_FOUND"

	// Authorization
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// Infrastructure
	CodeTransient Code = "TRANSIENT_STORE_ERROR"
	CodeInternal  Code = "INTERNAL_ERROR"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthorization
	KindTransient
)

func (c Code) Kind() Kind {
	switch c {
	case CodeValidation, CodeInvalidQRCode, CodeInvalidRole:
		return KindValidation
	case CodeSessionNotFound, CodeSessionExpired, CodeInvalidApproveNonce, CodeInvalidTicket,
		CodeInviteNotFound, CodeInviteRevoked, CodeInviteExhausted, CodeInviteExpired,
		CodeRoleBindingNotFound:
		return KindConflict
	case CodeUnauthorized, CodeForbidden:
		return KindAuthorization
	case CodeTransient:
		return KindTransient
	default:
		return KindInternal
	}
}

// Error is the domain error every public operation returns.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// transient wraps a store or cache failure. Errors that already carry a
// domain code pass through.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	return WrapError(CodeTransient, op+" failed", err)
}

// CodeOf extracts the domain code from err, INTERNAL_ERROR when there is none.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

var (
	ErrValidation          = NewError(CodeValidation, "invalid request")
	ErrInvalidQRCode       = NewError(CodeInvalidQRCode, "invalid qr code")
	ErrInvalidRole         = NewError(CodeInvalidRole, "unknown role")
	ErrSessionNotFound     = NewError(CodeSessionNotFound, "session not found")
	ErrSessionExpired      = NewError(CodeSessionExpired, "session expired")
	ErrInvalidApproveNonce = NewError(CodeInvalidApproveNonce, "approve nonce is invalid or already used")
	ErrInvalidTicket       = NewError(CodeInvalidTicket, "login ticket is invalid or already used")
	ErrInviteNotFound      = NewError(CodeInviteNotFound, "invite not found")
	ErrInviteRevoked       = NewError(CodeInviteRevoked, "invite revoked")
	ErrInviteExhausted     = NewError(CodeInviteExhausted, "invite has no uses left")
	ErrInviteExpired       = NewError(CodeInviteExpired, "invite expired")
	ErrRoleBindingNotFound = NewError(CodeRoleBindingNotFound, "role binding not found")
	ErrUnauthorized        = NewError(CodeUnauthorized, "authentication required")
	ErrForbidden           = NewError(CodeForbidden, "forbidden")
)

func validationError(message string) *Error {
	return NewError(CodeValidation, message)
}

// Package common defines shared constants and sentinel errors used across
// the platform's addons and the HTTP boundary. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound           = errors.New("not found")
	ErrLoginAlreadyExists = errors.New("login already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Upload lifecycle errors.
	ErrPathLocked        = errors.New("file path is locked")
	ErrSignatureConsumed = errors.New("upload signature consumed")
	ErrVersionNotPending = errors.New("no pending upload")
	ErrSignatureMismatch = errors.New("invalid upload signature")
	ErrInvalidVersion    = errors.New("invalid version")
	ErrUploadPending     = errors.New("file upload in progress")
	ErrUploadFailed      = errors.New("file upload failed")

	// Webhook transport errors.
	ErrBadBodySignature = errors.New("invalid body signature")
	ErrInvalidHookBody  = errors.New("invalid webhook payload")

	// Wiki page errors.
	ErrNameEmpty    = errors.New("page name empty")
	ErrNameInvalid  = errors.New("page name invalid")
	ErrNameTooLong  = errors.New("page name too long")
	ErrCannotRename = errors.New("page cannot be renamed")
	ErrPageConflict = errors.New("page already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

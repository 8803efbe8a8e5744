package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Stable machine-readable codes surfaced to API callers.
const (
	CodeNotConfigured       = "not_configured"
	CodeNotConnected        = "not_connected"
	CodeInvalidState        = "invalid_state"
	CodeExpiredState        = "expired_state"
	CodeTokenExchangeFailed = "token_exchange_failed"
	CodeRefreshFailed       = "refresh_failed"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeRateLimited         = "rate_limited"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeUpstreamUnreachable = "upstream_unreachable"
	CodeUnsupportedResource = "unsupported_resource_type"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal"
)

// Coder is implemented by errors that carry a stable API code.
type Coder interface {
	Code() string
}

// As is errors.As from the standard library, re-exported so callers need a
// single errors import.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is is errors.Is from the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// CodeOf walks the error chain and returns the first stable code found,
// falling back to CodeInternal.
func CodeOf(err error) string {
	for err != nil {
		if c, ok := err.(Coder); ok {
			return c.Code()
		}
		err = stderrors.Unwrap(err)
	}
	return CodeInternal
}

// Connection lifecycle errors

type ErrNotConfigured struct {
	CompanyID string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("company %s has no Xero client credentials configured", e.CompanyID)
}

func (e *ErrNotConfigured) Code() string { return CodeNotConfigured }

type ErrNotConnected struct {
	CompanyID string
}

func (e *ErrNotConnected) Error() string {
	return fmt.Sprintf("company %s is not connected to Xero", e.CompanyID)
}

func (e *ErrNotConnected) Code() string { return CodeNotConnected }

type ErrNotFound struct {
	CompanyID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no Xero connection exists for company %s", e.CompanyID)
}

func (e *ErrNotFound) Code() string { return CodeNotFound }

// OAuth state errors

type ErrInvalidState struct {
	State string
}

func (e *ErrInvalidState) Error() string {
	return "oauth state is unknown or already used"
}

func (e *ErrInvalidState) Code() string { return CodeInvalidState }

type ErrExpiredState struct {
	State string
	Age   time.Duration
}

func (e *ErrExpiredState) Error() string {
	return fmt.Sprintf("oauth state is %s old and no longer valid", e.Age.Round(time.Second))
}

func (e *ErrExpiredState) Code() string { return CodeExpiredState }

// Token errors

type ErrTokenExchangeFailed struct {
	Reason string
	Err    error
}

func (e *ErrTokenExchangeFailed) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("token exchange failed: %s", e.Reason)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *ErrTokenExchangeFailed) Unwrap() error { return e.Err }

func (e *ErrTokenExchangeFailed) Code() string { return CodeTokenExchangeFailed }

type ErrRefreshFailed struct {
	CompanyID string
	Err       error
}

func (e *ErrRefreshFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed for company %s: %v", e.CompanyID, e.Err)
	}
	return fmt.Sprintf("token refresh failed for company %s: no refresh token stored", e.CompanyID)
}

func (e *ErrRefreshFailed) Unwrap() error { return e.Err }

func (e *ErrRefreshFailed) Code() string { return CodeRefreshFailed }

// Upstream errors

type ErrUnauthorized struct {
	Operation string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("xero rejected %s: unauthorized", e.Operation)
}

func (e *ErrUnauthorized) Code() string { return CodeUnauthorized }

type ErrForbidden struct {
	Operation string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("xero rejected %s: forbidden", e.Operation)
}

func (e *ErrForbidden) Code() string { return CodeForbidden }

type ErrRateLimited struct {
	RetryAfter time.Duration
	Problem    string
}

func (e *ErrRateLimited) Error() string {
	if e.Problem != "" {
		return fmt.Sprintf("xero rate limit hit (%s), retry after %s", e.Problem, e.RetryAfter)
	}
	return fmt.Sprintf("xero rate limit hit, retry after %s", e.RetryAfter)
}

func (e *ErrRateLimited) Code() string { return CodeRateLimited }

type ErrUpstreamUnavailable struct {
	Status int
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("xero returned status %d", e.Status)
}

func (e *ErrUpstreamUnavailable) Code() string { return CodeUpstreamUnavailable }

type ErrUpstreamUnreachable struct {
	Err error
}

func (e *ErrUpstreamUnreachable) Error() string {
	return fmt.Sprintf("xero unreachable: %v", e.Err)
}

func (e *ErrUpstreamUnreachable) Unwrap() error { return e.Err }

func (e *ErrUpstreamUnreachable) Code() string { return CodeUpstreamUnreachable }

type ErrUnsupportedResourceType struct {
	Type string
}

func (e *ErrUnsupportedResourceType) Error() string {
	return fmt.Sprintf("unsupported resource type: %s", e.Type)
}

func (e *ErrUnsupportedResourceType) Code() string { return CodeUnsupportedResource }

type ErrInvalidParam struct {
	Param string
	Value string
}

func (e *ErrInvalidParam) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Value)
}

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error { return e.Err }

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error { return e.Err }

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error { return e.Err }

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error { return e.Err }

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error { return e.Err }

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error { return e.Err }

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error { return e.Err }

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error { return e.Err }

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error { return e.Err }

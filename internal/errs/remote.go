package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CredentialError reports that a stored credential could not be decrypted.
type CredentialError struct {
	Cause error
}

func (e *CredentialError) Error() string {
	if e.Cause == nil {
		return "credential: decrypt failed"
	}
	return fmt.Sprintf("credential: decrypt failed: %v", e.Cause)
}

func (e *CredentialError) Unwrap() error { return e.Cause }

// TokenExchangeError reports a rejected or failed refresh-token exchange.
type TokenExchangeError struct {
	StatusCode       int
	ErrorCode        string
	ErrorDescription string
	BodySnippet      string
	Cause            error
}

func (e *TokenExchangeError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("token exchange failed: %v", e.Cause)
	case e.ErrorCode != "" || e.ErrorDescription != "":
		return fmt.Sprintf("token exchange failed: %d %s %s", e.StatusCode, e.ErrorCode, e.ErrorDescription)
	case e.BodySnippet != "":
		return fmt.Sprintf("token exchange failed: %d %s", e.StatusCode, e.BodySnippet)
	default:
		return fmt.Sprintf("token exchange failed: %d", e.StatusCode)
	}
}

func (e *TokenExchangeError) Unwrap() error { return e.Cause }

// Revoked reports whether the identity provider rejected the grant itself,
// which usually means the seller must re-authorize.
func (e *TokenExchangeError) Revoked() bool {
	return e.ErrorCode == "invalid_grant" || e.StatusCode == http.StatusUnauthorized
}

// RemoteAPIError is any status >= 400 answered by a platform endpoint.
type RemoteAPIError struct {
	StatusCode int
	Method     string
	Endpoint   string
	// Detail is the parsed JSON error body, or the raw text when it is not JSON.
	Detail string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote api %d %s %s -> %s", e.StatusCode, e.Method, e.Endpoint, e.Detail)
}

// Retryable reports whether an idempotent call may be repeated.
func (e *RemoteAPIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Mentions reports whether the error detail contains all fragments, case-insensitively.
func (e *RemoteAPIError) Mentions(fragments ...string) bool {
	d := strings.ToLower(e.Detail)
	for _, f := range fragments {
		if !strings.Contains(d, strings.ToLower(f)) {
			return false
		}
	}
	return true
}

// SigningRequiredError is a 401/403 caused by a missing or invalid request signature.
type SigningRequiredError struct {
	*RemoteAPIError
}

func (e *SigningRequiredError) Error() string {
	return "platform rejected unsigned request: configure AWS_ACCESS_KEY/AWS_SECRET_KEY or disable NO_AWS_MODE: " +
		e.RemoteAPIError.Error()
}

func (e *SigningRequiredError) Unwrap() error { return e.RemoteAPIError }

// ReportTimeoutError reports a job that did not reach a terminal state in time.
type ReportTimeoutError struct {
	ReportID   string
	ReportType string
	LastStatus string
	Waited     time.Duration
}

func (e *ReportTimeoutError) Error() string {
	return fmt.Sprintf("report %s (%s) not finished after %s, last status %q",
		e.ReportID, e.ReportType, e.Waited.Round(time.Second), e.LastStatus)
}

// ReportFailedError reports a job that ended in a non-success terminal state.
type ReportFailedError struct {
	ReportID   string
	ReportType string
	Status     string
	Cause      error
}

func (e *ReportFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("report %s (%s) failed with status %s: %v", e.ReportID, e.ReportType, e.Status, e.Cause)
	}
	return fmt.Sprintf("report %s (%s) failed with status %s", e.ReportID, e.ReportType, e.Status)
}

func (e *ReportFailedError) Unwrap() error { return e.Cause }

// Skippable reports whether err only affects a single report kind and the
// caller should continue with the others.
func Skippable(err error) bool {
	var te *ReportTimeoutError
	var fe *ReportFailedError
	return errors.As(err, &te) || errors.As(err, &fe)
}

// CredentialProblem reports whether err stems from the stored credential or
// the identity provider, as opposed to the platform or the network.
func CredentialProblem(err error) bool {
	var ce *CredentialError
	var te *TokenExchangeError
	if errors.As(err, &ce) {
		return true
	}
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

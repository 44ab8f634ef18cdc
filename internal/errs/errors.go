// Package errs provides the unified error taxonomy used across cloudbox.
//
// Every provider adapter translates its native failures into one of three
// types before returning them to callers:
//
//   - *ResolutionError: credentials are missing or malformed. Raised before any
//     network I/O and never worth retrying without new input.
//   - *TransportError: DNS, timeout or connection-level failure. Always
//     retryable by the caller.
//   - *ProviderError: the provider answered and rejected the request. Carries
//     the mapped Kind plus the provider's own code and message.
//
// Callers use the Is* predicates to branch on the kind without importing any
// provider package:
//
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorises an error without exposing provider-specific codes.
type Kind int

const (
	KindUnknown          Kind = iota
	KindAuthentication        // bad signature, expired or unknown key
	KindNotFound              // no bucket, no container, no object
	KindPermission            // authenticated but not allowed
	KindRedirect              // wrong region or endpoint
	KindMalformedRequest      // the provider rejected the request shape
	KindTransport             // DNS, timeout, connection reset
	KindResolution            // credential material insufficient
	KindUnsupported           // the backend cannot express the operation
	KindThrottled             // rate limited
	KindConflict              // bucket or container already exists
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindRedirect:
		return "redirect"
	case KindMalformedRequest:
		return "malformed_request"
	case KindTransport:
		return "transport"
	case KindResolution:
		return "resolution"
	case KindUnsupported:
		return "unsupported"
	case KindThrottled:
		return "throttled"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// ProviderError is a semantically meaningful rejection from a storage provider.
type ProviderError struct {
	Kind     Kind
	Provider string
	Op       string

	// Code is the provider-native error code (e.g. "NoSuchBucket").
	Code string

	// Message is the provider's human-readable message.
	Message string

	// Status is the HTTP status of the faulting response, 0 if not HTTP.
	Status int

	// RedirectTarget is the endpoint suggested by a redirect fault.
	RedirectTarget string

	// RedirectRegion is the region suggested by a redirect fault.
	RedirectRegion string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Kind.String())
	b.WriteString("] ")
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(" ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString(e.Code)
		if e.Message != "" {
			b.WriteString(": ")
		}
	}
	b.WriteString(e.Message)
	return b.String()
}

// TransportError is a failure below the HTTP layer.
type TransportError struct {
	Op    string
	URL   string
	Cause error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("[transport] %s %s: %v", e.Op, e.URL, e.Cause)
	}
	return fmt.Sprintf("[transport] %s: %v", e.Op, e.Cause)
}

// Unwrap allows errors.Is(err, context.DeadlineExceeded) and friends.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ResolutionError reports that raw credential material could not satisfy any
// authentication mode.
type ResolutionError struct {
	Provider string
	Missing  []string
	Reason   string
}

func (e *ResolutionError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if e.Provider != "" {
		return fmt.Sprintf("[resolution] %s: %s", e.Provider, strings.Join(parts, "; "))
	}
	return "[resolution] " + strings.Join(parts, "; ")
}

// --- Constructors ---

// New creates a *ProviderError with the given kind and message.
func New(kind Kind, provider, msg string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: msg}
}

// Unsupported reports an operation the backend cannot express.
func Unsupported(provider, op string) *ProviderError {
	return &ProviderError{
		Kind:     KindUnsupported,
		Provider: provider,
		Op:       op,
		Message:  "operation not supported by this provider",
	}
}

// Transport wraps a connection-level failure.
func Transport(op, url string, cause error) *TransportError {
	return &TransportError{Op: op, URL: url, Cause: cause}
}

// Missing creates a *ResolutionError naming the absent fields.
func Missing(provider string, fields ...string) *ResolutionError {
	return &ResolutionError{Provider: provider, Missing: fields}
}

// Invalid creates a *ResolutionError for malformed material.
func Invalid(provider, reason string) *ResolutionError {
	return &ResolutionError{Provider: provider, Reason: reason}
}

// WithOp returns err with Op filled in when err is a *ProviderError that has
// none yet. Other errors are returned unchanged.
func WithOp(err error, op string) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Op == "" {
		pe.Op = op
	}
	return err
}

// --- Predicates ---

// IsAuthentication reports whether err is a credential rejection.
func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }

// IsNotFound reports whether err represents a missing bucket, container or object.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsPermission reports whether err is an access control failure.
func IsPermission(err error) bool { return KindOf(err) == KindPermission }

// IsRedirect reports whether err is a wrong-region/endpoint fault.
func IsRedirect(err error) bool { return KindOf(err) == KindRedirect }

// IsMalformedRequest reports whether the provider rejected the request shape.
func IsMalformedRequest(err error) bool { return KindOf(err) == KindMalformedRequest }

// IsTransport reports whether err happened below the HTTP layer.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsResolution reports whether err came from credential resolution.
func IsResolution(err error) bool { return KindOf(err) == KindResolution }

// IsUnsupported reports whether the backend cannot perform the operation.
func IsUnsupported(err error) bool { return KindOf(err) == KindUnsupported }

// IsThrottled reports whether the provider rate limited the request.
func IsThrottled(err error) bool { return KindOf(err) == KindThrottled }

// IsConflict reports whether the target already exists.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// Retryable reports whether a caller may reasonably retry err unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindThrottled:
		return true
	}
	return false
}

// KindOf extracts the Kind from any error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var re *ResolutionError
	if errors.As(err, &re) {
		return KindResolution
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	return KindUnknown
}

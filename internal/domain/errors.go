package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors have no infrastructure dependency. Every sentinel
// belongs to exactly one ErrorKind; callers wrap them with %w and classify
// the result with KindOf.

var (
	// Authorization
	ErrUnauthorized        = errors.New("signer is not the owner of this account")
	ErrNotAssignedProvider = errors.New("task is not assigned to this provider")
	ErrEndpointMismatch    = errors.New("endpoint is not the one designated by the task")
	ErrBadSignature        = errors.New("request signature is invalid")

	// State machine
	ErrInvalidTransition     = errors.New("task status transition not allowed")
	ErrProviderInactive      = errors.New("provider node is inactive")
	ErrProviderNotRegistered = errors.New("provider node is not listed in the registry")
	ErrTaskNotCompleted      = errors.New("task has not been completed")
	ErrAccountExists         = errors.New("account already exists")

	// Resource / value
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientReputation = errors.New("reputation below bonus threshold")
	ErrInsufficientQuality    = errors.New("quality score below required minimum")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")

	// Staleness
	ErrStaleQuality = errors.New("quality report is older than the freshness window")
	ErrStaleRequest = errors.New("request timestamp outside accepted window")

	// Not found
	ErrAccountNotFound = errors.New("account not found")
	ErrResultMissing   = errors.New("task result reference missing")
	ErrQualityMissing  = errors.New("quality report required but not supplied")

	// Malformed input / layout
	ErrFieldTooLong     = errors.New("field exceeds maximum length")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrAccountKind      = errors.New("account holds a different record type")
	ErrAccountTooSmall  = errors.New("record does not fit declared account size")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrMalformedInput   = errors.New("malformed input")
)

// ErrorKind groups sentinel errors by how a caller should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindState
	KindResource
	KindStaleness
	KindNotFound
	KindMalformed
)

var kindNames = map[ErrorKind]string{
	KindUnknown:       "unknown",
	KindAuthorization: "authorization",
	KindState:         "state",
	KindResource:      "resource",
	KindStaleness:     "staleness",
	KindNotFound:      "not_found",
	KindMalformed:     "malformed",
}

func (k ErrorKind) String() string { return kindNames[k] }

var errorKinds = []struct {
	kind ErrorKind
	errs []error
}{
	{KindAuthorization, []error{ErrUnauthorized, ErrNotAssignedProvider, ErrEndpointMismatch, ErrBadSignature}},
	{KindState, []error{ErrInvalidTransition, ErrProviderInactive, ErrProviderNotRegistered, ErrTaskNotCompleted, ErrAccountExists}},
	{KindResource, []error{ErrInsufficientFunds, ErrInsufficientReputation, ErrInsufficientQuality, ErrArithmeticOverflow}},
	{KindStaleness, []error{ErrStaleQuality, ErrStaleRequest}},
	{KindNotFound, []error{ErrAccountNotFound, ErrResultMissing, ErrQualityMissing}},
	{KindMalformed, []error{ErrFieldTooLong, ErrInvalidAmount, ErrAccountKind, ErrAccountTooSmall, ErrInvalidPublicKey, ErrMalformedInput}},
}

// KindOf classifies err by the first sentinel it wraps.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, group := range errorKinds {
		for _, sentinel := range group.errs {
			if errors.Is(err, sentinel) {
				return group.kind
			}
		}
	}
	return KindUnknown
}

package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind enumerates the error kinds named verbatim in spec.md §7. Every
// fallible operation in claims, registry, wasmrt, provider, linkstore,
// router and control returns (or wraps) one of these so that callers can
// switch on kind without losing the human-readable cause.
type ErrKind string

const (
	ErrInvalidClaims      ErrKind = "InvalidClaims"
	ErrIssuerNotTrusted   ErrKind = "IssuerNotTrusted"
	ErrArtifactHashMismatch ErrKind = "ArtifactHashMismatch"
	ErrRegistryNotFound   ErrKind = "RegistryNotFound"
	ErrRegistryAuth       ErrKind = "RegistryAuth"
	ErrRegistryTransport  ErrKind = "RegistryTransport"
	ErrInvalidReference   ErrKind = "InvalidReference"
	ErrWasmCompile        ErrKind = "WasmCompile"
	ErrWasmTrap           ErrKind = "WasmTrap"
	ErrWasmTimeout        ErrKind = "WasmTimeout"
	ErrOverloaded         ErrKind = "Overloaded"
	ErrLinkMissing        ErrKind = "LinkMissing"
	ErrNotFound           ErrKind = "NotFound"
	ErrProviderSpawnFailed  ErrKind = "ProviderSpawnFailed"
	ErrProviderUnresponsive ErrKind = "ProviderUnresponsive"
	ErrProviderCrashed    ErrKind = "ProviderCrashed"
	ErrBusTransport       ErrKind = "BusTransport"
	ErrBusTimeout         ErrKind = "BusTimeout"
	ErrChunkStoreFailure  ErrKind = "ChunkStoreFailure"
	ErrNotPermitted       ErrKind = "NotPermitted"
	ErrPreconditionFailed ErrKind = "PreconditionFailed"
	ErrAlreadyExists      ErrKind = "AlreadyExists"
)

// KindError carries one of the ErrKind sentinels plus a wrapped cause.
// errors.Is(err, someKindError) matches on Kind, not on the wrapped message,
// so two KindErrors with the same Kind and different messages are equal for
// control-flow purposes.
type KindError struct {
	Kind ErrKind
	msg  string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *KindError) Unwrap() error { return e.Err }

func (e *KindError) Is(target error) bool {
	other, ok := target.(*KindError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// NewKindErr builds a new KindError, optionally wrapping a lower-level
// cause. Transport-layer callers (registry, router) typically pass the
// underlying I/O error as cause so retries can still inspect it.
func NewKindErr(kind ErrKind, msg string, cause error) *KindError {
	return &KindError{Kind: kind, msg: msg, Err: cause}
}

// Kindf is NewKindErr with fmt.Sprintf-style formatting and no cause.
func Kindf(kind ErrKind, format string, a ...interface{}) *KindError {
	return &KindError{Kind: kind, msg: fmt.Sprintf(format, a...)}
}

// KindOf extracts the ErrKind from err, walking the unwrap chain. Returns
// ("", false) if neither err nor anything in its chain is a *KindError.
func KindOf(err error) (ErrKind, bool) {
	var ke *KindError
	for err != nil {
		if k, ok := err.(*KindError); ok {
			ke = k
			break
		}
		err = errors.Unwrap(err)
	}
	if ke == nil {
		return "", false
	}
	return ke.Kind, true
}

// Is reports whether err's chain carries the given kind.
func Is(err error, kind ErrKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// WithStack is pkg/errors.WithStack re-exported under the cmn namespace so
// every package that needs a stack-annotated error imports only cmn.
func WithStack(err error) error { return errors.WithStack(err) }

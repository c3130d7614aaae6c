package types

import "errors"

// Error kinds returned by the placement and reservation core. Callers match
// them with errors.Is; the wrapping message carries the specifics.
var (
	ErrValidation              = errors.New("validation error")
	ErrNoNamespaceAvailability = errors.New("no namespace availability")
	ErrNoFreeHosts             = errors.New("no free hosts in pool")
	ErrServiceNotInstalled     = errors.New("service not installed")
	ErrInvalidBackingService   = errors.New("invalid backing service")
	ErrDuplicateMember         = errors.New("duplicate pool member")
	ErrAlreadyPresent          = errors.New("already present in pool")
	ErrStateCheck              = errors.New("state check failed")
	ErrRemoteCall              = errors.New("remote call failed")
	ErrNotFound                = errors.New("not found")
)

// errorKinds names each kind on the wire. Order matters: the first match wins
// when an error wraps more than one kind.
var errorKinds = []struct {
	name string
	err  error
}{
	{"validation", ErrValidation},
	{"not-found", ErrNotFound},
	{"no-namespace-availability", ErrNoNamespaceAvailability},
	{"no-free-hosts", ErrNoFreeHosts},
	{"service-not-installed", ErrServiceNotInstalled},
	{"invalid-backing-service", ErrInvalidBackingService},
	{"duplicate-member", ErrDuplicateMember},
	{"already-present", ErrAlreadyPresent},
	{"state-check", ErrStateCheck},
	{"remote-call", ErrRemoteCall},
}

// ErrorKind returns the wire name of the kind err carries, or "" if none
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// KindError maps a wire name back to its sentinel. Unknown names return nil.
func KindError(name string) error {
	for _, k := range errorKinds {
		if k.name == name {
			return k.err
		}
	}
	return nil
}

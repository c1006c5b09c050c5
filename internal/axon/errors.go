package axon

import (
	"errors"
	"fmt"

	"github.com/axonhq/axon/pkg/digest"
)

// Sentinel errors returned by Service operations. RPC transports translate
// these into wire-level error codes for clients.
var (
	ErrCancelled    = errors.New("axon: operation cancelled")
	ErrUnauthorized = errors.New("axon: capability not granted")
	ErrBadInput     = errors.New("axon: bad input")
	ErrStorageFault = errors.New("axon: storage fault")
)

// NotFoundError reports that a digest has no corresponding blob.
type NotFoundError struct {
	Digest digest.SHA256
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("axon: no such file: %s", e.Digest)
}

// Is lets errors.Is(err, ErrNotFound) match any *NotFoundError, since
// callers generally care about the kind of failure, not which digest.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ErrNotFound is the sentinel matched by every *NotFoundError.
var ErrNotFound = errors.New("axon: no such file")

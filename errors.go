package tonic

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrEssenceNotFound reports a lookup of an id that is not (or no longer)
// registered. Matches errdefs.IsNotFound.
var ErrEssenceNotFound = fmt.Errorf("essence not found: %w", errdefs.ErrNotFound)

// ErrServiceNameConflict reports an attempt to claim a service name that is
// already owned by a different class. Matches errdefs.IsConflict.
var ErrServiceNameConflict = fmt.Errorf("service name conflict: %w", errdefs.ErrConflict)

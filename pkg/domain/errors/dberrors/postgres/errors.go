package postgres

import (
	"fmt"

	"github.com/opst/ripen/pkg/domain"
)

// Missing tells requested record is not found.
//
// errors.Is(Missing{...}, domain.ErrMissing) is true.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return domain.ErrMissing
}

// Conflict tells a record is not in a state the operation expects.
type Conflict struct {
	Table    string
	Identity string
	Reason   string

	// sentinel error for the conflict. Can be nil.
	Cause error
}

var _ error = Conflict{}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s in %s: %s", c.Identity, c.Table, c.Reason)
}

func (c Conflict) Unwrap() error {
	return c.Cause
}

package ranking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
)

// Sentinel kinds for orchestrator errors.
var (
	ErrUnknownListing     = errors.New("unknown listing")
	ErrSelfComparison     = errors.New("winner and loser are the same listing")
	ErrPartialPersistence = errors.New("some ratings were not persisted")
	ErrBandUnstable       = errors.New("listing kept changing band while waiting for its lock")
)

// PartialFailureError reports the listings whose rating write failed during
// a band recomputation. Writes that succeeded are not rolled back.
type PartialFailureError struct {
	Band   band.ID
	Failed []model.ListingID
	Err    error // first underlying write error
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, id := range e.Failed {
		ids[i] = fmt.Sprint(int64(id))
	}
	return fmt.Sprintf("band %s: %d rating writes failed [%s]: %v", e.Band, len(e.Failed), strings.Join(ids, ","), e.Err)
}

// Is matches ErrPartialPersistence.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialPersistence
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

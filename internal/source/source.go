package source

import (
	"context"

	"watchpost/internal/model"
)

// StateSource supplies one host state snapshot per invocation. A failure to
// produce a record is reported as an error, distinct from a valid-but-empty
// record; the session treats it as fatal and does not retry.
type StateSource interface {
	Sample(ctx context.Context) (*model.StateRecord, error)
}

// FlowSource supplies a sequence of captured flow records. An invalid unit
// is delivered as a nil record so the aggregator's no-op policy applies.
type FlowSource interface {
	// Records returns the channel the source delivers records on. It is
	// closed when capture ends.
	Records() <-chan *model.FlowRecord

	// Err returns the capture failure after Records is closed, or nil on
	// clean shutdown.
	Err() error
}

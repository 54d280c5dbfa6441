package session

import (
	"watchpost/internal/model"
)

// State is the observable phase of a session driver.
type State string

const (
	StateIdle             State = "IDLE"
	StateBaselineCaptured State = "BASELINE_CAPTURED"
	StateSampling         State = "SAMPLING"
	StateFinished         State = "FINISHED"
)

// FindingSink receives findings as sessions append them, e.g. for
// publishing to downstream consumers. Sink failures are logged and never
// fail the session.
type FindingSink interface {
	PublishFinding(finding *model.Finding) error
}

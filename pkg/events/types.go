package events

import "time"

// EventType identifies the kind of event emitted during a convergence run.
type EventType string

const (
	EventRunStart         EventType = "run.start"
	EventRunEnd           EventType = "run.end"
	EventProbeResult      EventType = "probe.result"
	EventAssertionApplied EventType = "assertion.applied"
	EventAssertionFailed  EventType = "assertion.failed"
	EventAssertionSkipped EventType = "assertion.skipped"
	EventDownloadStart    EventType = "download.start"
	EventDownloadDone     EventType = "download.done"
	EventVerifyResult     EventType = "verify.result"
	EventCheckpointResult EventType = "checkpoint.result"
	EventConfigImported   EventType = "config.imported"
	EventConfigReverted   EventType = "config.reverted"
	EventUpgradeStart     EventType = "upgrade.start"
	EventUpgradeEnd       EventType = "upgrade.end"
)

// Event is a single run event.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Assertion string        `json:"assertion,omitempty"`
	Data      any           `json:"data,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(typ EventType, assertion string, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		Assertion: assertion,
		Data:      data,
	}
}

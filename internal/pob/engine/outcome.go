package engine

// Mode is the operating mode of the attendance engine.
type Mode string

const (
	// ModeCheckInOut (CIO) toggles a person's on-platform flag.
	ModeCheckInOut Mode = "CIO"
	// ModeCheckEvent (CEV) records/reverses presence confirmations
	// within the active session.
	ModeCheckEvent Mode = "CEV"
)

// OutcomeKind classifies the result of processing one payload.
type OutcomeKind string

const (
	OutcomeCheckedIn        OutcomeKind = "checked_in"
	OutcomeCheckedOut       OutcomeKind = "checked_out"
	OutcomePresenceRecorded OutcomeKind = "presence_recorded"
	OutcomePresenceReversed OutcomeKind = "presence_reversed"
	OutcomeSessionOpened    OutcomeKind = "session_opened"
	OutcomeSessionClosed    OutcomeKind = "session_closed"
	OutcomeNotRegistered    OutcomeKind = "not_registered"
	OutcomeNoActiveSession  OutcomeKind = "no_active_session"
	OutcomeMalformed        OutcomeKind = "malformed"
	OutcomeNotFound         OutcomeKind = "not_found"
	OutcomeAmbiguousMatch   OutcomeKind = "ambiguous_match"
	OutcomeStorageFailure   OutcomeKind = "storage_failure"
)

// Outcome is what the presentation layer renders: enough data for status
// text, colors and sound cues, with no formatting done here.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Identifier string      `json:"identifier,omitempty"`
	Name       string      `json:"name,omitempty"`
	Group      int         `json:"group,omitempty"`
	SessionID  int64       `json:"session_id,omitempty"`
	Matches    []string    `json:"matches,omitempty"`
	Mode       Mode        `json:"mode"`
}

// Sink receives every outcome the engine produces.  Implemented by the
// presentation layer; must not block for long.
type Sink interface {
	Publish(Outcome)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Outcome)

func (f SinkFunc) Publish(o Outcome) { f(o) }

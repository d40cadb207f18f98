// Package engine holds the mode-aware state machine that interprets scanned
// identifiers against the roster and the event ledger.
//
// The engine is the single logical owner of all roster/ledger mutation:
// camera scans and manual searches are marshaled onto one processing
// goroutine through a request channel, so transition functions never run
// concurrently and the "check exists + insert check" pair stays a single
// critical section.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"pobchecker/internal/pob/codec"
	"pobchecker/internal/pob/store"
)

// ErrClosed is returned by Dispatch and DispatchManual once Close has
// been called.
var ErrClosed = errors.New("engine: closed")

// Config carries the engine's dependencies and initial state.
type Config struct {
	Roster store.RosterStore
	Ledger store.LedgerStore
	Logger *log.Logger

	// Sentinel is the reserved payload that toggles check-event mode.
	// Must never collide with a valid identifier-bearing payload.
	Sentinel string

	// DefaultMode is the mode the engine starts in.
	DefaultMode Mode

	// DefaultGroup is assigned to people first seen via a camera
	// check-in.
	DefaultGroup int

	// Sink receives every outcome.  Optional.
	Sink Sink
}

type reqKind int

const (
	reqScan reqKind = iota
	reqManual
)

type request struct {
	ctx   context.Context
	kind  reqKind
	input string
	reply chan Outcome
}

// Engine runs for the process lifetime.  Mode and session id are owned by
// the processing goroutine and never touched from outside it.
type Engine struct {
	roster   store.RosterStore
	ledger   store.LedgerStore
	logger   *log.Logger
	sentinel string
	group    int
	sink     Sink

	mode      Mode
	sessionID int64 // 0 = no active session; meaningful only under CEV

	reqs      chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New builds the engine and starts its processing goroutine.  If the
// configured default mode is CEV and the ledger still has an open session
// (e.g. after a crash), that session is adopted as active.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Sentinel == "" {
		return nil, fmt.Errorf("engine: sentinel payload is required")
	}
	if cfg.DefaultGroup <= 0 {
		cfg.DefaultGroup = 1
	}
	mode := cfg.DefaultMode
	if mode != ModeCheckEvent {
		mode = ModeCheckInOut
	}

	e := &Engine{
		roster:   cfg.Roster,
		ledger:   cfg.Ledger,
		logger:   cfg.Logger,
		sentinel: cfg.Sentinel,
		group:    cfg.DefaultGroup,
		sink:     cfg.Sink,
		mode:     mode,
		reqs:     make(chan request, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if mode == ModeCheckEvent {
		id, ok, err := e.ledger.ActiveSessionID(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: recover session: %w", err)
		}
		if ok {
			e.sessionID = id
		}
	}

	go e.loop()
	return e, nil
}

// Close stops the processing goroutine and waits for it to exit.  Safe
// to call more than once and concurrently with Dispatch; requests still
// queued or arriving after Close fail with ErrClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

// Dispatch feeds one scan payload (camera or injected) through the state
// machine and returns the outcome.  Safe to call from any goroutine;
// after Close it returns ErrClosed.
func (e *Engine) Dispatch(ctx context.Context, payload string) (Outcome, error) {
	return e.submit(ctx, request{kind: reqScan, input: payload})
}

// DispatchManual resolves a manual search term and, on a single unambiguous
// match, feeds it through the same transition functions as a scan.
func (e *Engine) DispatchManual(ctx context.Context, term string) (Outcome, error) {
	return e.submit(ctx, request{kind: reqManual, input: term})
}

func (e *Engine) submit(ctx context.Context, r request) (Outcome, error) {
	r.ctx = ctx
	r.reply = make(chan Outcome, 1)

	select {
	case e.reqs <- r:
	case <-e.quit:
		return Outcome{}, ErrClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	// The send can still win a race with Close; if the loop is already
	// gone the reply never comes and quit reports it here.
	select {
	case out := <-r.reply:
		return out, nil
	case <-e.quit:
		return Outcome{}, ErrClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (e *Engine) loop() {
	defer close(e.done)

	for {
		var r request
		select {
		case <-e.quit:
			return
		case r = <-e.reqs:
		}

		var out Outcome
		switch r.kind {
		case reqManual:
			out = e.processManual(r.ctx, r.input)
		default:
			out = e.process(r.ctx, r.input)
		}
		out.Mode = e.mode
		if e.sink != nil {
			e.sink.Publish(out)
		}
		r.reply <- out
	}
}

// process runs one payload through the state machine.  Called only from the
// processing goroutine.
func (e *Engine) process(ctx context.Context, payload string) Outcome {
	if payload == e.sentinel {
		return e.toggleEventMode(ctx)
	}

	id, name, err := codec.Parse(payload)
	if err != nil {
		return Outcome{Kind: OutcomeMalformed}
	}

	if e.mode == ModeCheckEvent {
		if e.sessionID == 0 {
			return Outcome{Kind: OutcomeNoActiveSession, Identifier: id}
		}
		return e.checkEvent(ctx, id, name)
	}
	return e.checkInOut(ctx, id, name)
}

// processManual resolves a search term against the roster.  Zero and
// multiple matches are terminal outcomes; a single match re-enters the scan
// path as "identifier|name".
func (e *Engine) processManual(ctx context.Context, term string) Outcome {
	people, err := e.roster.Search(ctx, term)
	if err != nil {
		return e.storageFailure("search", err)
	}

	switch len(people) {
	case 0:
		return Outcome{Kind: OutcomeNotFound}
	case 1:
		p := people[0]
		return e.process(ctx, p.Identifier+"|"+p.Name)
	default:
		names := make([]string, len(people))
		for i, p := range people {
			names[i] = p.Name
		}
		return Outcome{Kind: OutcomeAmbiguousMatch, Matches: names}
	}
}

// toggleEventMode handles the reserved sentinel payload.
func (e *Engine) toggleEventMode(ctx context.Context) Outcome {
	if e.mode == ModeCheckEvent && e.sessionID != 0 {
		if err := e.ledger.CloseSession(ctx, e.sessionID); err != nil {
			return e.storageFailure("close session", err)
		}
		closed := e.sessionID
		e.mode = ModeCheckInOut
		e.sessionID = 0
		return Outcome{Kind: OutcomeSessionClosed, SessionID: closed}
	}

	// CIO, or CEV with the session closed out from under us: open (or
	// adopt) a session and go active.
	id, ok, err := e.ledger.ActiveSessionID(ctx)
	if err != nil {
		return e.storageFailure("active session", err)
	}
	if !ok {
		id, err = e.ledger.OpenSession(ctx)
		if err != nil {
			return e.storageFailure("open session", err)
		}
	}
	e.mode = ModeCheckEvent
	e.sessionID = id
	return Outcome{Kind: OutcomeSessionOpened, SessionID: id}
}

// checkInOut toggles the on-platform flag and appends the movement record.
func (e *Engine) checkInOut(ctx context.Context, id, name string) Outcome {
	p, known, err := e.roster.FindByIdentifier(ctx, id)
	if err != nil {
		return e.storageFailure("find person", err)
	}

	if known && p.OnPlatform {
		// Check-out.
		if err := e.roster.SetOnPlatform(ctx, id, false); err != nil {
			return e.storageFailure("set off-platform", err)
		}
		if err := e.ledger.RecordMovement(ctx, id, p.Name, store.DirectionOut); err != nil {
			// Revert so no partial state survives.
			if rerr := e.roster.SetOnPlatform(ctx, id, true); rerr != nil {
				e.logf("revert on-platform flag for %s: %v", id, rerr)
			}
			return e.storageFailure("record movement", err)
		}
		return Outcome{Kind: OutcomeCheckedOut, Identifier: id, Name: p.Name, Group: p.Group}
	}

	// Check-in: a display name must come from the payload or the roster.
	display := name
	if display == "" && known {
		display = p.Name
	}
	if display == "" {
		return Outcome{Kind: OutcomeNotRegistered, Identifier: id}
	}

	group := e.group
	if known {
		group = p.Group
		if err := e.roster.SetOnPlatform(ctx, id, true); err != nil {
			return e.storageFailure("set on-platform", err)
		}
	} else {
		if err := e.roster.UpsertPerson(ctx, store.Person{
			Identifier: id,
			Name:       display,
			Group:      group,
			OnPlatform: true,
		}); err != nil {
			return e.storageFailure("register person", err)
		}
	}

	if err := e.ledger.RecordMovement(ctx, id, display, store.DirectionIn); err != nil {
		if rerr := e.roster.SetOnPlatform(ctx, id, false); rerr != nil {
			e.logf("revert on-platform flag for %s: %v", id, rerr)
		}
		return e.storageFailure("record movement", err)
	}
	return Outcome{Kind: OutcomeCheckedIn, Identifier: id, Name: display, Group: group}
}

// checkEvent toggles the presence confirmation for the active session.
// Unregistered identifiers are rejected: CEV mode never creates roster
// entries.
func (e *Engine) checkEvent(ctx context.Context, id, name string) Outcome {
	p, known, err := e.roster.FindByIdentifier(ctx, id)
	if err != nil {
		return e.storageFailure("find person", err)
	}
	if !known {
		return Outcome{Kind: OutcomeNotRegistered, Identifier: id, SessionID: e.sessionID}
	}

	display := name
	if display == "" {
		display = p.Name
	}

	checked, err := e.ledger.IsChecked(ctx, id, e.sessionID)
	if err != nil {
		return e.storageFailure("is checked", err)
	}

	if checked {
		if _, err := e.ledger.RemoveCheck(ctx, id, e.sessionID); err != nil {
			return e.storageFailure("remove check", err)
		}
		return Outcome{Kind: OutcomePresenceReversed, Identifier: id, Name: display, Group: p.Group, SessionID: e.sessionID}
	}

	if _, err := e.ledger.RecordCheck(ctx, id, display, e.sessionID); err != nil {
		return e.storageFailure("record check", err)
	}
	return Outcome{Kind: OutcomePresenceRecorded, Identifier: id, Name: display, Group: p.Group, SessionID: e.sessionID}
}

// storageFailure logs the underlying error and leaves mode/state unchanged.
func (e *Engine) storageFailure(op string, err error) Outcome {
	e.logf("storage failure (%s): %v", op, err)
	return Outcome{Kind: OutcomeStorageFailure, SessionID: e.sessionID}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"pobchecker/internal/pob/engine"
	"pobchecker/internal/pob/store"
	"pobchecker/internal/pob/store/memory"
)

const sentinel = "QR_EVENT_CONTROL_2024"

// newTestEngine wires an engine over in-memory stores.  The stores are
// returned so tests can seed and inspect them.
func newTestEngine(t *testing.T, mode engine.Mode) (*engine.Engine, *memory.RosterStore, *memory.LedgerStore) {
	t.Helper()

	roster := memory.NewRosterStore()
	ledger := memory.NewLedgerStore()
	roster.AttachLedger(ledger)

	eng, err := engine.New(context.Background(), engine.Config{
		Roster:      roster,
		Ledger:      ledger,
		Logger:      log.New(io.Discard, "", 0),
		Sentinel:    sentinel,
		DefaultMode: mode,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng, roster, ledger
}

func seedPerson(t *testing.T, roster *memory.RosterStore, id, name string, group int) {
	t.Helper()
	if err := roster.UpsertPerson(context.Background(), store.Person{
		Identifier: id,
		Name:       name,
		Group:      group,
	}); err != nil {
		t.Fatalf("seed person: %v", err)
	}
}

// ── Check-in/out mode ────────────────────────────────────────────────────────

func TestCIO_CheckIn_NewPerson(t *testing.T) {
	eng, roster, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()

	out, err := eng.Dispatch(ctx, "11122233344|Ana")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Kind != engine.OutcomeCheckedIn {
		t.Fatalf("kind = %s, want checked_in", out.Kind)
	}
	if out.Name != "Ana" {
		t.Errorf("name = %q, want Ana", out.Name)
	}

	p, ok, _ := roster.FindByIdentifier(ctx, "11122233344")
	if !ok || !p.OnPlatform {
		t.Error("expected person registered and on platform")
	}

	moves, _ := ledger.Movements(ctx, "11122233344")
	if len(moves) != 1 || moves[0].Direction != store.DirectionIn {
		t.Fatalf("expected exactly one IN movement, got %v", moves)
	}
}

func TestCIO_ToggleSymmetry(t *testing.T) {
	eng, roster, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()
	seedPerson(t, roster, "55566677788", "Bruno Lima", 1)

	first, _ := eng.Dispatch(ctx, "55566677788")
	if first.Kind != engine.OutcomeCheckedIn {
		t.Fatalf("first scan kind = %s, want checked_in", first.Kind)
	}
	second, _ := eng.Dispatch(ctx, "55566677788")
	if second.Kind != engine.OutcomeCheckedOut {
		t.Fatalf("second scan kind = %s, want checked_out", second.Kind)
	}

	p, _, _ := roster.FindByIdentifier(ctx, "55566677788")
	if p.OnPlatform {
		t.Error("flag should be back to off-platform after the toggle pair")
	}

	moves, _ := ledger.Movements(ctx, "55566677788")
	if len(moves) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(moves))
	}
	if moves[0].Direction != store.DirectionIn || moves[1].Direction != store.DirectionOut {
		t.Errorf("expected IN then OUT, got %s then %s", moves[0].Direction, moves[1].Direction)
	}
}

func TestCIO_BareUnknownIdentifier_NotRegistered(t *testing.T) {
	eng, _, ledger := newTestEngine(t, engine.ModeCheckInOut)

	// No name in the payload and nobody in the roster: a check-in cannot
	// produce a display name.
	out, _ := eng.Dispatch(context.Background(), "99988877766")
	if out.Kind != engine.OutcomeNotRegistered {
		t.Fatalf("kind = %s, want not_registered", out.Kind)
	}
	if len(ledger.AllMovements()) != 0 {
		t.Error("no movement should be recorded")
	}
}

func TestCIO_CheckOut_UsesRosterName(t *testing.T) {
	eng, roster, _ := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()
	seedPerson(t, roster, "55566677788", "Bruno Lima", 2)
	_ = roster.SetOnPlatform(ctx, "55566677788", true)

	out, _ := eng.Dispatch(ctx, "55566677788")
	if out.Kind != engine.OutcomeCheckedOut {
		t.Fatalf("kind = %s, want checked_out", out.Kind)
	}
	if out.Name != "Bruno Lima" || out.Group != 2 {
		t.Errorf("outcome = %+v, want roster name and group", out)
	}
}

// ── Sentinel / session transitions ───────────────────────────────────────────

func TestSentinel_OpensAndClosesSession(t *testing.T) {
	eng, _, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()

	opened, _ := eng.Dispatch(ctx, sentinel)
	if opened.Kind != engine.OutcomeSessionOpened {
		t.Fatalf("kind = %s, want session_opened", opened.Kind)
	}
	if opened.SessionID == 0 {
		t.Fatal("expected a session id")
	}
	if opened.Mode != engine.ModeCheckEvent {
		t.Errorf("mode = %s, want CEV", opened.Mode)
	}

	closed, _ := eng.Dispatch(ctx, sentinel)
	if closed.Kind != engine.OutcomeSessionClosed {
		t.Fatalf("kind = %s, want session_closed", closed.Kind)
	}
	if closed.SessionID != opened.SessionID {
		t.Errorf("closed session %d, want %d", closed.SessionID, opened.SessionID)
	}
	if closed.Mode != engine.ModeCheckInOut {
		t.Errorf("mode = %s, want CIO after closing", closed.Mode)
	}

	sess, ok := ledger.Session(opened.SessionID)
	if !ok || !sess.Closed || sess.ClosedAt == nil {
		t.Errorf("session not closed with timestamp: %+v", sess)
	}
}

func TestSentinel_SessionExclusivity(t *testing.T) {
	eng, _, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()

	first, _ := eng.Dispatch(ctx, sentinel)

	// While the machine holds an open session, a direct second open must
	// be rejected by the ledger.
	if _, err := ledger.OpenSession(ctx); !errors.Is(err, store.ErrSessionOpen) {
		t.Fatalf("OpenSession err = %v, want ErrSessionOpen", err)
	}

	// Close via sentinel, then a new open succeeds with a fresh id.
	_, _ = eng.Dispatch(ctx, sentinel)
	second, _ := eng.Dispatch(ctx, sentinel)
	if second.Kind != engine.OutcomeSessionOpened {
		t.Fatalf("kind = %s, want session_opened", second.Kind)
	}
	if second.SessionID == first.SessionID {
		t.Error("expected a new session id after close/reopen")
	}
}

func TestCEVIdle_SentinelReopensWithoutRoundTrip(t *testing.T) {
	eng, _, ledger := newTestEngine(t, engine.ModeCheckEvent)
	ctx := context.Background()

	// CEV with no open session: ordinary identifiers bounce.
	out, _ := eng.Dispatch(ctx, "11122233344")
	if out.Kind != engine.OutcomeNoActiveSession {
		t.Fatalf("kind = %s, want no_active_session", out.Kind)
	}

	// The sentinel opens a session directly from CEV idle.
	opened, _ := eng.Dispatch(ctx, sentinel)
	if opened.Kind != engine.OutcomeSessionOpened {
		t.Fatalf("kind = %s, want session_opened", opened.Kind)
	}
	if _, ok, _ := ledger.ActiveSessionID(ctx); !ok {
		t.Error("expected an active session")
	}
}

func TestCEV_RecoversCrashLeftSession(t *testing.T) {
	roster := memory.NewRosterStore()
	ledger := memory.NewLedgerStore()
	sid, err := ledger.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	seedPerson(t, roster, "11122233344", "Ana", 1)

	eng, err := engine.New(context.Background(), engine.Config{
		Roster:      roster,
		Ledger:      ledger,
		Logger:      log.New(io.Discard, "", 0),
		Sentinel:    sentinel,
		DefaultMode: engine.ModeCheckEvent,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close()

	out, _ := eng.Dispatch(context.Background(), "11122233344")
	if out.Kind != engine.OutcomePresenceRecorded {
		t.Fatalf("kind = %s, want presence_recorded against the adopted session", out.Kind)
	}
	if out.SessionID != sid {
		t.Errorf("session = %d, want adopted %d", out.SessionID, sid)
	}
}

// ── Check-event mode ─────────────────────────────────────────────────────────

func TestCEV_ToggleSymmetry(t *testing.T) {
	eng, roster, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()
	seedPerson(t, roster, "55566677788", "Bruno Lima", 1)

	opened, _ := eng.Dispatch(ctx, sentinel)

	first, _ := eng.Dispatch(ctx, "55566677788")
	if first.Kind != engine.OutcomePresenceRecorded {
		t.Fatalf("first kind = %s, want presence_recorded", first.Kind)
	}

	second, _ := eng.Dispatch(ctx, "55566677788")
	if second.Kind != engine.OutcomePresenceReversed {
		t.Fatalf("second kind = %s, want presence_reversed", second.Kind)
	}

	checked, _ := ledger.CheckedIdentifiers(ctx, opened.SessionID)
	if len(checked) != 0 {
		t.Errorf("expected zero check records after the toggle pair, got %d", len(checked))
	}
}

func TestCEV_UnregisteredRejected(t *testing.T) {
	eng, _, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()

	opened, _ := eng.Dispatch(ctx, sentinel)

	// CEV mode never creates roster entries, even with a name supplied.
	out, _ := eng.Dispatch(ctx, "99988877766|Carla")
	if out.Kind != engine.OutcomeNotRegistered {
		t.Fatalf("kind = %s, want not_registered", out.Kind)
	}
	checked, _ := ledger.CheckedIdentifiers(ctx, opened.SessionID)
	if len(checked) != 0 {
		t.Error("no check should be recorded for an unregistered identifier")
	}
}

func TestCEV_PayloadNamePreferredInSnapshot(t *testing.T) {
	eng, roster, _ := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()
	seedPerson(t, roster, "55566677788", "Bruno Lima", 1)

	_, _ = eng.Dispatch(ctx, sentinel)
	out, _ := eng.Dispatch(ctx, "55566677788|B. Lima")
	if out.Name != "B. Lima" {
		t.Errorf("name = %q, want payload name to win the snapshot", out.Name)
	}
}

// ── Malformed and manual search ──────────────────────────────────────────────

func TestMalformedPayload_NoMutation(t *testing.T) {
	eng, _, ledger := newTestEngine(t, engine.ModeCheckInOut)

	out, _ := eng.Dispatch(context.Background(), "abc")
	if out.Kind != engine.OutcomeMalformed {
		t.Fatalf("kind = %s, want malformed", out.Kind)
	}
	if out.Mode != engine.ModeCheckInOut {
		t.Errorf("mode = %s, want unchanged CIO", out.Mode)
	}
	if len(ledger.AllMovements()) != 0 {
		t.Error("no movement should be recorded for a malformed payload")
	}
}

func TestManual_ZeroMatches(t *testing.T) {
	eng, _, _ := newTestEngine(t, engine.ModeCheckInOut)

	out, err := eng.DispatchManual(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("DispatchManual: %v", err)
	}
	if out.Kind != engine.OutcomeNotFound {
		t.Errorf("kind = %s, want not_found", out.Kind)
	}
}

func TestManual_MultipleMatches(t *testing.T) {
	eng, roster, _ := newTestEngine(t, engine.ModeCheckInOut)
	seedPerson(t, roster, "11122233344", "Ana Souza", 1)
	seedPerson(t, roster, "55566677788", "Ana Lima", 1)

	out, _ := eng.DispatchManual(context.Background(), "ana")
	if out.Kind != engine.OutcomeAmbiguousMatch {
		t.Fatalf("kind = %s, want ambiguous_match", out.Kind)
	}
	if len(out.Matches) != 2 {
		t.Errorf("matches = %v, want both names", out.Matches)
	}
}

func TestManual_SingleMatch_ActsLikeScan(t *testing.T) {
	eng, roster, ledger := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()
	seedPerson(t, roster, "11122233344", "Ana Souza", 1)

	out, _ := eng.DispatchManual(ctx, "souza")
	if out.Kind != engine.OutcomeCheckedIn {
		t.Fatalf("kind = %s, want checked_in", out.Kind)
	}

	moves, _ := ledger.Movements(ctx, "11122233344")
	if len(moves) != 1 || moves[0].Direction != store.DirectionIn {
		t.Errorf("expected one IN movement, got %v", moves)
	}
}

func TestManual_NumericTermMatchesIdentifier(t *testing.T) {
	eng, roster, _ := newTestEngine(t, engine.ModeCheckInOut)
	seedPerson(t, roster, "11122233344", "Ana Souza", 1)

	out, _ := eng.DispatchManual(context.Background(), "111.222")
	if out.Kind != engine.OutcomeCheckedIn {
		t.Errorf("kind = %s, want checked_in via identifier substring", out.Kind)
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestClose_IdempotentAndRejectsLateDispatch(t *testing.T) {
	eng, _, _ := newTestEngine(t, engine.ModeCheckInOut)
	ctx := context.Background()

	eng.Close()
	eng.Close() // a second Close must not panic

	if _, err := eng.Dispatch(ctx, "11122233344|Ana"); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Dispatch after Close: err = %v, want ErrClosed", err)
	}
	if _, err := eng.DispatchManual(ctx, "ana"); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("DispatchManual after Close: err = %v, want ErrClosed", err)
	}
}

func TestClose_RacingDispatchDoesNotPanic(t *testing.T) {
	eng, roster, _ := newTestEngine(t, engine.ModeCheckInOut)
	seedPerson(t, roster, "11122233344", "Ana", 1)

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for i := 0; i < 100; i++ {
			if _, err := eng.Dispatch(context.Background(), "11122233344"); errors.Is(err, engine.ErrClosed) {
				return
			}
		}
	}()

	eng.Close()
	<-stop
}

// ── Storage failures ─────────────────────────────────────────────────────────

// failingLedger fails movement appends to exercise the engine's rollback.
type failingLedger struct {
	*memory.LedgerStore
	failMovements bool
}

func (l *failingLedger) RecordMovement(ctx context.Context, identifier, name string, dir store.Direction) error {
	if l.failMovements {
		return errors.New("disk full")
	}
	return l.LedgerStore.RecordMovement(ctx, identifier, name, dir)
}

func TestStorageFailure_FlagReverted(t *testing.T) {
	roster := memory.NewRosterStore()
	ledger := &failingLedger{LedgerStore: memory.NewLedgerStore(), failMovements: true}
	seedPerson(t, roster, "55566677788", "Bruno Lima", 1)

	eng, err := engine.New(context.Background(), engine.Config{
		Roster:      roster,
		Ledger:      ledger,
		Logger:      log.New(io.Discard, "", 0),
		Sentinel:    sentinel,
		DefaultMode: engine.ModeCheckInOut,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	out, _ := eng.Dispatch(ctx, "55566677788")
	if out.Kind != engine.OutcomeStorageFailure {
		t.Fatalf("kind = %s, want storage_failure", out.Kind)
	}

	// The flag flip must not be observable after the failed transition.
	p, _, _ := roster.FindByIdentifier(ctx, "55566677788")
	if p.OnPlatform {
		t.Error("on-platform flag should have been reverted")
	}
}

// ── Outcome sink ─────────────────────────────────────────────────────────────

func TestSink_ReceivesEveryOutcome(t *testing.T) {
	roster := memory.NewRosterStore()
	ledger := memory.NewLedgerStore()

	var got []engine.Outcome
	eng, err := engine.New(context.Background(), engine.Config{
		Roster:      roster,
		Ledger:      ledger,
		Logger:      log.New(io.Discard, "", 0),
		Sentinel:    sentinel,
		DefaultMode: engine.ModeCheckInOut,
		Sink:        engine.SinkFunc(func(o engine.Outcome) { got = append(got, o) }),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ctx := context.Background()
	_, _ = eng.Dispatch(ctx, "abc")
	_, _ = eng.Dispatch(ctx, "11122233344|Ana")
	eng.Close()

	if len(got) != 2 {
		t.Fatalf("sink received %d outcomes, want 2", len(got))
	}
	if got[0].Kind != engine.OutcomeMalformed || got[1].Kind != engine.OutcomeCheckedIn {
		t.Errorf("sink outcomes = %v", got)
	}
}

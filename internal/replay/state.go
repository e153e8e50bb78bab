package replay

import (
	"fmt"
	"sort"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/ledger"
	"shadow-index-lab/internal/sizing"
)

// stateVersion is bumped whenever State changes shape.
const stateVersion = 1

// State is the persisted form of an engine between polling passes.
// Restoring it and feeding the remaining events gives the same result as one
// uninterrupted replay.
type State struct {
	Version         int                 `msgpack:"version"`
	RunID           string              `msgpack:"run_id"`
	StrategyID      string              `msgpack:"strategy_id"`
	Timeframe       string              `msgpack:"timeframe"`
	StartingCapital float64             `msgpack:"starting_capital"`
	Ledger          ledger.State        `msgpack:"ledger"`
	Policy          sizing.State        `msgpack:"policy"`
	Processed       []ProcessedEvent    `msgpack:"processed"` // ascending by id
	Started         bool                `msgpack:"started"`
	Tick            int64               `msgpack:"tick"`
	Curve           []domain.CurvePoint `msgpack:"curve"`
	PeakValue       float64             `msgpack:"peak_value"`
	MaxDrawdown     float64             `msgpack:"max_drawdown"`
	Cursor          string              `msgpack:"cursor"`
	Diagnostics     Diagnostics         `msgpack:"diagnostics"`
}

// ProcessedEvent is one entry of the idempotence set.
type ProcessedEvent struct {
	ID          string `msgpack:"id"`
	Fingerprint uint64 `msgpack:"fp"`
}

// Export captures the engine state.
func (e *Engine) Export() State {
	processed := make([]ProcessedEvent, 0, len(e.processed))
	for id, fp := range e.processed {
		processed = append(processed, ProcessedEvent{ID: id, Fingerprint: fp})
	}
	sort.Slice(processed, func(i, j int) bool { return processed[i].ID < processed[j].ID })

	return State{
		Version:         stateVersion,
		RunID:           e.runID,
		StrategyID:      e.cfg.ID,
		Timeframe:       e.opts.Timeframe.Name,
		StartingCapital: e.opts.StartingCapital,
		Ledger:          e.ledger.Export(),
		Policy:          e.policyState,
		Processed:       processed,
		Started:         e.started,
		Tick:            e.tick,
		Curve:           e.Curve(),
		PeakValue:       e.peakValue,
		MaxDrawdown:     e.maxDrawdown,
		Cursor:          e.evaluator.Cursor(),
		Diagnostics: Diagnostics{
			Entered:         e.diag.Entered,
			ScaledIn:        e.diag.ScaledIn,
			Skipped:         copyCounts(e.diag.Skipped),
			ForcedExits:     copyCounts(e.diag.ForcedExits),
			MalformedEvents: e.diag.MalformedEvents,
			LateEvents:      e.diag.LateEvents,
			DuplicateEvents: e.diag.DuplicateEvents,
			QuoteLookups:    e.diag.QuoteLookups,
			DeferredChecks:  e.diag.DeferredChecks,
			PartialSells:    e.diag.PartialSells,
		},
	}
}

// Snapshot encodes the engine state. Equal states encode to equal bytes.
func (e *Engine) Snapshot() ([]byte, error) {
	return ledger.Encode(e.Export())
}

// Restore creates an engine from opts and loads a snapshot into it.
// The snapshot must have been taken from a run with the same run id.
func Restore(opts Options, data []byte) (*Engine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	var st State
	if err := ledger.Decode(data, &st); err != nil {
		return nil, err
	}
	if err := e.load(st); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(st State) error {
	if st.Version != stateVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSnapshotMismatch, st.Version, stateVersion)
	}
	if st.RunID != e.runID {
		return fmt.Errorf("%w: run %s, want %s", ErrSnapshotMismatch, st.RunID, e.runID)
	}

	e.ledger = ledger.FromState(st.Ledger)
	e.policyState = st.Policy
	e.processed = make(map[string]uint64, len(st.Processed))
	for _, p := range st.Processed {
		e.processed[p.ID] = p.Fingerprint
	}
	e.started = st.Started
	e.tick = st.Tick
	e.curve = append([]domain.CurvePoint(nil), st.Curve...)
	e.peakValue = st.PeakValue
	e.maxDrawdown = st.MaxDrawdown
	e.evaluator.SetCursor(st.Cursor)

	e.diag = st.Diagnostics
	if e.diag.Skipped == nil {
		e.diag.Skipped = make(map[string]int)
	}
	if e.diag.ForcedExits == nil {
		e.diag.ForcedExits = make(map[string]int)
	}
	return nil
}

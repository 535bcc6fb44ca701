package auction

import "time"

// Phase is the explicit lifecycle state of one auction.
type Phase int

const (
	// PhaseDescription: the seller is presenting; bids are dropped.
	PhaseDescription Phase = iota
	// PhaseGrace: bidding is open and quiet ticks cannot close the auction yet.
	PhaseGrace
	// PhaseOpen: steady state; a full quiet grace window closes the auction.
	PhaseOpen
	// PhaseConcluding: termination decided, teardown in progress.
	PhaseConcluding
	// PhaseClosed: torn down.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseDescription:
		return "description"
	case PhaseGrace:
		return "grace"
	case PhaseOpen:
		return "open"
	case PhaseConcluding:
		return "concluding"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies what one tick decided.
type OutcomeKind int

const (
	// OutcomeNoAction: still in the description phase.
	OutcomeNoAction OutcomeKind = iota
	// OutcomeContinue: tick passed with no winner; wait for the next one.
	OutcomeContinue
	// OutcomeConcluded: a winning bid was selected this tick.
	OutcomeConcluded
	// OutcomeTerminate: the auction is over (time up, or quiet too long).
	OutcomeTerminate
)

// Outcome is the result of resolving one tick. Winning is only meaningful
// when Kind == OutcomeConcluded.
type Outcome struct {
	Kind    OutcomeKind
	Winning Bid
}

// Lifecycle owns the timing policy of one auction. All durations are
// converted to whole ticks up front; AdvanceTick and Resolve are the only
// mutators and are driven from a single goroutine.
type Lifecycle struct {
	phase            Phase
	elapsed          int // ticks since the auction opened
	operateTicks     int
	descriptionTicks int
	graceTicks       int // extra window after the description phase
	quietTicks       int // ticks since the last queued bid while bidding is open
	opened           bool
	tick             time.Duration
}

// NewLifecycle derives the tick thresholds from the configured durations.
// operate is the total run time of the auction, description the presentation
// window, grace the extra window after it during which silence is not fatal.
func NewLifecycle(operate, description, grace, tick time.Duration) *Lifecycle {
	return &Lifecycle{
		phase:            PhaseDescription,
		operateTicks:     int(operate / tick),
		descriptionTicks: int(description / tick),
		graceTicks:       int(grace / tick),
		tick:             tick,
	}
}

// Phase returns the current lifecycle phase.
func (lc *Lifecycle) Phase() Phase { return lc.phase }

// Running reports whether the auction's operating window is still open.
func (lc *Lifecycle) Running() bool {
	return lc.phase != PhaseConcluding && lc.phase != PhaseClosed && lc.elapsed < lc.operateTicks
}

// Accepting reports whether a bid attempt may be queued right now. Early bids
// during the grace period count.
func (lc *Lifecycle) Accepting() bool {
	return lc.phase == PhaseGrace || lc.phase == PhaseOpen
}

// Remaining is the time left in the operating window, at tick granularity.
func (lc *Lifecycle) Remaining() time.Duration {
	left := lc.operateTicks - lc.elapsed
	if left < 0 {
		left = 0
	}
	return time.Duration(left) * lc.tick
}

// AdvanceTick moves the clock forward one tick and recomputes the phase.
// It reports true exactly once: on the tick that opens bidding.
func (lc *Lifecycle) AdvanceTick() (biddingOpened bool) {
	if lc.phase == PhaseConcluding || lc.phase == PhaseClosed {
		return false
	}
	lc.elapsed++
	if lc.elapsed < lc.descriptionTicks {
		return false
	}
	if !lc.opened {
		lc.opened = true
		lc.phase = PhaseGrace
		lc.quietTicks = 0
		return true
	}
	if lc.phase == PhaseGrace && lc.elapsed >= lc.descriptionTicks+lc.graceTicks {
		lc.phase = PhaseOpen
		// The fatal quiet window is measured from here, not from the
		// moment bidding opened.
		lc.quietTicks = 0
	}
	return false
}

// Resolve decides the outcome of the current tick from the queued bids.
// Called once per tick, after AdvanceTick. The caller clears the window.
func (lc *Lifecycle) Resolve(led *Ledger) Outcome {
	switch lc.phase {
	case PhaseDescription:
		return Outcome{Kind: OutcomeNoAction}
	case PhaseConcluding, PhaseClosed:
		return Outcome{Kind: OutcomeTerminate}
	}
	if lc.elapsed >= lc.operateTicks {
		lc.phase = PhaseConcluding
		return Outcome{Kind: OutcomeTerminate}
	}
	if best, ok := led.Best(); ok {
		lc.quietTicks = 0
		return Outcome{Kind: OutcomeConcluded, Winning: best}
	}
	lc.quietTicks++
	if lc.phase == PhaseOpen && lc.quietTicks >= lc.graceTicks {
		lc.phase = PhaseConcluding
		return Outcome{Kind: OutcomeTerminate}
	}
	return Outcome{Kind: OutcomeContinue}
}

// Close marks the lifecycle finished. Idempotent; teardown can be reached
// from several trigger paths.
func (lc *Lifecycle) Close() {
	lc.phase = PhaseClosed
}

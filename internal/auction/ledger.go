package auction

// Bid is one attempt queued inside the current tick window.
type Bid struct {
	Bidder string // connection id of the bidder
	Price  int64
}

// Ledger tracks the running price of one auction and the bids that
// accumulated since the last tick. The price only ever moves up.
type Ledger struct {
	price     int64
	increment int64
	pending   []Bid
}

func NewLedger(price, increment int64) *Ledger {
	return &Ledger{price: price, increment: increment}
}

// Price is the current asking price.
func (l *Ledger) Price() int64 { return l.price }

// Queue appends a bid to the current tick window. Validation (phase, minimum
// price) happens in House; the ledger just records arrival order.
func (l *Ledger) Queue(b Bid) {
	l.pending = append(l.pending, b)
}

// Pending reports how many bids are queued in the current window.
func (l *Ledger) Pending() int { return len(l.pending) }

// Best returns the winning bid of the current window: highest price, ties
// broken by earliest arrival. ok is false when the window is empty.
func (l *Ledger) Best() (best Bid, ok bool) {
	for i, b := range l.pending {
		if i == 0 || b.Price > best.Price {
			best = b
			ok = true
		}
	}
	return best, ok
}

// Raise bumps the asking price by one increment. Called at most once per
// tick, after a conclusion.
func (l *Ledger) Raise() {
	l.price += l.increment
}

// ResetWindow clears the pending bids so the next tick starts empty.
func (l *Ledger) ResetWindow() {
	l.pending = l.pending[:0]
}

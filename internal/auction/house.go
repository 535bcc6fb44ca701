package auction

// Conclusion records the buyer and price accepted on a past tick.
type Conclusion struct {
	Buyer string // connection id
	Price int64
}

// House aggregates one auction's ledger, lifecycle and participant roster.
// It is owned by exactly one session goroutine and is never shared, so it
// carries no locking.
type House struct {
	seller         string
	ledger         *Ledger
	life           *Lifecycle
	participants   map[string]struct{}
	lastConclusion *Conclusion
}

func NewHouse(seller string, ledger *Ledger, life *Lifecycle) *House {
	return &House{
		seller:       seller,
		ledger:       ledger,
		life:         life,
		participants: map[string]struct{}{seller: {}},
	}
}

func (h *House) Seller() string        { return h.seller }
func (h *House) Ledger() *Ledger       { return h.ledger }
func (h *House) Lifecycle() *Lifecycle { return h.life }

// LastConclusion returns the most recent accepted bid, or nil.
func (h *House) LastConclusion() *Conclusion { return h.lastConclusion }

// Join adds a participant. No-op if already present or the auction closed.
func (h *House) Join(connID string) {
	if !h.life.Running() && h.life.Phase() != PhaseDescription {
		return
	}
	h.participants[connID] = struct{}{}
}

// Leave drops a participant. Unknown ids are a no-op.
func (h *House) Leave(connID string) {
	delete(h.participants, connID)
}

func (h *House) ParticipantCount() int { return len(h.participants) }

// IsParticipant reports whether the connection belongs to this auction.
func (h *House) IsParticipant(connID string) bool {
	_, ok := h.participants[connID]
	return ok
}

// SubmitBid queues a bid attempt for the current tick window. Attempts
// outside the bidding window or below the asking price are silently dropped.
func (h *House) SubmitBid(bidder string, price int64) {
	if !h.life.Accepting() {
		return
	}
	if price < h.ledger.Price() {
		return
	}
	h.ledger.Queue(Bid{Bidder: bidder, Price: price})
}

// Tick runs one full evaluation cycle: advance the clock, resolve the bid
// window, apply a conclusion if there is one, and clear the window so the
// next tick starts empty. biddingOpened is true exactly once per auction.
func (h *House) Tick() (out Outcome, biddingOpened bool) {
	biddingOpened = h.life.AdvanceTick()
	out = h.life.Resolve(h.ledger)
	if out.Kind == OutcomeConcluded {
		h.lastConclusion = &Conclusion{Buyer: out.Winning.Bidder, Price: out.Winning.Price}
		h.ledger.Raise()
	}
	h.ledger.ResetWindow()
	return out, biddingOpened
}

// Close marks the auction finished. Idempotent.
func (h *House) Close() {
	h.life.Close()
}

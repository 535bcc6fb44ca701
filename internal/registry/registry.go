// Package registry owns the process-wide auction table: one session per
// product plus the session directory mapping each connection to its user and
// product. A single loop serializes every cross-product operation, so entries
// are only ever touched from here.
package registry

import (
	"context"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/overbid/live-auction-backend/internal/product"
	"github.com/overbid/live-auction-backend/internal/rtc"
	"github.com/overbid/live-auction-backend/internal/session"
	"github.com/overbid/live-auction-backend/pkg/types"
)

type Msg interface{ isRegistryMsg() }

// Identify binds a connection to a user identity.
type Identify struct{ ConnID, UserID string }

// Open starts an auction with the connection as seller.
type Open struct {
	ConnID    string
	UserID    string
	ProductID string
	Outbox    chan types.ServerEvent
}

// Join adds the connection as a bidder.
type Join struct {
	ConnID    string
	UserID    string
	ProductID string
	Outbox    chan types.ServerEvent
}

// Bid is a bid attempt; AtAsk means "at the current asking price".
type Bid struct {
	ConnID    string
	ProductID string
	Price     int64
	AtAsk     bool
}

// Chat relays a message to the product's participants.
type Chat struct{ ProductID, UserID, Message string }

// Signal carries session-description and ICE-candidate payloads. The target
// auction is resolved through the directory.
type Signal struct {
	ConnID    string
	Event     string // senderOffer | senderCandidate | receiverOffer | receiverCandidate
	SDP       *webrtc.SessionDescription
	Candidate *webrtc.ICECandidateInit
}

// ForceExit is the seller-only abort.
type ForceExit struct{ ConnID string }

// ProducerClose is the seller's "close" notice for a product.
type ProducerClose struct{ ConnID, ProductID string }

// Disconnect clears everything the connection owned.
type Disconnect struct{ ConnID string }

// Close tears down one auction. Idempotent.
type Close struct{ ProductID string }

// Shutdown stops every auction and the registry loop.
type Shutdown struct{}

// Summary describes one live auction for the listing endpoint.
type Summary struct {
	ProductID    string `json:"productId"`
	SellerUserID string `json:"sellerUserId"`
	Participants int    `json:"participants"`
}

// List replies with every live auction.
type List struct{ Reply chan []Summary }

// Lookup reflects a directory row without data races. Test-only.
type Lookup struct {
	ConnID string
	Reply  chan DirEntry
}

// sessionClosed arrives from a session's OnClosed hook.
type sessionClosed struct{ productID string }

func (Identify) isRegistryMsg()      {}
func (Open) isRegistryMsg()          {}
func (Join) isRegistryMsg()          {}
func (Bid) isRegistryMsg()           {}
func (Chat) isRegistryMsg()          {}
func (Signal) isRegistryMsg()        {}
func (ForceExit) isRegistryMsg()     {}
func (ProducerClose) isRegistryMsg() {}
func (Disconnect) isRegistryMsg()    {}
func (Close) isRegistryMsg()         {}
func (Shutdown) isRegistryMsg()      {}
func (List) isRegistryMsg()          {}
func (Lookup) isRegistryMsg()        {}
func (sessionClosed) isRegistryMsg() {}

// DirEntry is one session-directory row.
type DirEntry struct {
	UserID    string
	ProductID string // empty when the connection is in no auction
}

type entry struct {
	sess   *session.Session
	seller string // seller's connection id
}

type Registry struct {
	inbox     chan Msg
	entries   map[string]*entry
	directory map[string]*DirEntry
	store     product.Store
	factory   rtc.Factory
	timing    session.Timing
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, store product.Store, factory rtc.Factory, timing session.Timing, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:     make(chan Msg, 64),
		entries:   make(map[string]*entry),
		directory: make(map[string]*DirEntry),
		store:     store,
		factory:   factory,
		timing:    timing,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Identify:
				r.identify(msg)
			case Open:
				r.open(msg)
			case Join:
				r.join(msg)
			case Bid:
				if e := r.entries[msg.ProductID]; e != nil {
					r.forward(e, session.BidAttempt{ConnID: msg.ConnID, Price: msg.Price, AtAsk: msg.AtAsk})
				}
			case Chat:
				if e := r.entries[msg.ProductID]; e != nil {
					r.forward(e, session.Chat{UserID: msg.UserID, Message: msg.Message})
				}
			case Signal:
				r.signal(msg)
			case ForceExit:
				if e := r.entryFor(msg.ConnID); e != nil {
					r.forward(e, session.ForceExit{ConnID: msg.ConnID})
				}
			case ProducerClose:
				if e := r.entries[msg.ProductID]; e != nil {
					r.forward(e, session.ProducerClose{ConnID: msg.ConnID})
				}
			case Disconnect:
				r.disconnect(msg.ConnID)
			case Close:
				r.closeAuction(msg.ProductID)
			case sessionClosed:
				r.closeAuction(msg.productID)
			case List:
				msg.Reply <- r.list()
			case Lookup:
				if d := r.directory[msg.ConnID]; d != nil {
					msg.Reply <- *d
				} else {
					msg.Reply <- DirEntry{}
				}
			case Shutdown:
				for id := range r.entries {
					r.closeAuction(id)
				}
				r.cancel()
			}
		}
	}
}

func (r *Registry) identify(msg Identify) {
	if d := r.directory[msg.ConnID]; d != nil {
		d.UserID = msg.UserID
		return
	}
	r.directory[msg.ConnID] = &DirEntry{UserID: msg.UserID}
}

func (r *Registry) open(msg Open) {
	// Duplicate open events from the same seller are a legal race.
	if r.entries[msg.ProductID] != nil {
		return
	}

	p, err := r.store.ProductForAuction(r.ctx, msg.ProductID)
	if err != nil {
		r.log.Warn("product lookup failed",
			zap.String("product", msg.ProductID), zap.Error(err))
		trySend(msg.Outbox, types.ServerEvent{Event: types.EvtDontOpenAuction})
		return
	}

	sess, err := session.New(r.ctx, session.Params{
		ProductID:  msg.ProductID,
		Product:    p,
		SellerConn: msg.ConnID,
		SellerUser: msg.UserID,
		SellerOut:  msg.Outbox,
		Timing:     r.timing,
		Factory:    r.factory,
		Log:        r.log,
		OnClosed: func(productID string) {
			select {
			case r.inbox <- sessionClosed{productID: productID}:
			case <-r.ctx.Done():
			}
		},
	})
	if err != nil {
		r.log.Error("open auction failed",
			zap.String("product", msg.ProductID), zap.Error(err))
		trySend(msg.Outbox, types.ServerEvent{Event: types.EvtDontOpenAuction})
		return
	}

	r.entries[msg.ProductID] = &entry{sess: sess, seller: msg.ConnID}
	r.directory[msg.ConnID] = &DirEntry{UserID: msg.UserID, ProductID: msg.ProductID}
	r.log.Info("auction opened",
		zap.String("product", msg.ProductID),
		zap.String("seller", msg.UserID),
		zap.Int64("price", p.Price))
}

func (r *Registry) join(msg Join) {
	if d := r.directory[msg.ConnID]; d != nil && d.ProductID != "" && d.ProductID != msg.ProductID {
		trySend(msg.Outbox, types.ServerEvent{
			Event:                 types.EvtGoUserAuction,
			OtherAuctionProductID: d.ProductID,
		})
		return
	}

	e := r.entries[msg.ProductID]
	if e == nil {
		trySend(msg.Outbox, types.ServerEvent{Event: types.EvtDontOpenAuction})
		return
	}

	reply := make(chan bool, 1)
	jmsg := session.Join{ConnID: msg.ConnID, UserID: msg.UserID, Outbox: msg.Outbox, Reply: reply}
	select {
	case e.sess.Inbox() <- jmsg:
	case <-e.sess.Done():
		trySend(msg.Outbox, types.ServerEvent{Event: types.EvtDontOpenAuction})
		return
	}

	select {
	case ok := <-reply:
		if !ok {
			return
		}
	case <-e.sess.Done():
		// Session closed while the join was in flight.
		trySend(msg.Outbox, types.ServerEvent{Event: types.EvtDontOpenAuction})
		return
	}

	if d := r.directory[msg.ConnID]; d != nil {
		d.UserID = msg.UserID
		d.ProductID = msg.ProductID
	} else {
		r.directory[msg.ConnID] = &DirEntry{UserID: msg.UserID, ProductID: msg.ProductID}
	}
}

func (r *Registry) signal(msg Signal) {
	e := r.entryFor(msg.ConnID)
	if e == nil {
		return
	}
	switch msg.Event {
	case types.EvtSenderOffer:
		if msg.SDP == nil {
			return
		}
		r.forward(e, session.ProducerOffer{ConnID: msg.ConnID, SDP: *msg.SDP})
	case types.EvtSenderCandidate:
		r.forward(e, session.ProducerCandidate{ConnID: msg.ConnID, Candidate: msg.Candidate})
	case types.EvtReceiverOffer:
		if msg.SDP == nil {
			return
		}
		r.forward(e, session.ConsumerOffer{ConnID: msg.ConnID, SDP: *msg.SDP})
	case types.EvtReceiverCandidate:
		r.forward(e, session.ConsumerCandidate{ConnID: msg.ConnID, Candidate: msg.Candidate})
	}
}

func (r *Registry) disconnect(connID string) {
	d := r.directory[connID]
	if d == nil {
		return
	}
	if d.ProductID != "" {
		if e := r.entries[d.ProductID]; e != nil {
			if e.seller == connID {
				r.closeAuction(d.ProductID)
			} else {
				r.forward(e, session.Leave{ConnID: connID})
			}
		}
	}
	delete(r.directory, connID)
}

// closeAuction removes the product's entry and clears every directory
// association. Safe to call repeatedly and from any trigger path.
func (r *Registry) closeAuction(productID string) {
	e := r.entries[productID]
	if e == nil {
		return
	}
	delete(r.entries, productID)
	select {
	case e.sess.Inbox() <- session.Shutdown{}:
	case <-e.sess.Done():
		// already torn itself down
	}
	for _, d := range r.directory {
		if d.ProductID == productID {
			d.ProductID = ""
		}
	}
	r.log.Info("auction closed", zap.String("product", productID))
}

// entryFor resolves a connection's auction through the directory.
func (r *Registry) entryFor(connID string) *entry {
	d := r.directory[connID]
	if d == nil || d.ProductID == "" {
		return nil
	}
	return r.entries[d.ProductID]
}

func (r *Registry) list() []Summary {
	out := make([]Summary, 0, len(r.entries))
	for id, e := range r.entries {
		s := Summary{ProductID: id}
		if d := r.directory[e.seller]; d != nil {
			s.SellerUserID = d.UserID
		}
		for _, d := range r.directory {
			if d.ProductID == id {
				s.Participants++
			}
		}
		out = append(out, s)
	}
	return out
}

// forward hands a message to a session unless it is already gone.
func (r *Registry) forward(e *entry, m session.Msg) {
	select {
	case e.sess.Inbox() <- m:
	case <-e.sess.Done():
	}
}

func trySend(ch chan types.ServerEvent, evt types.ServerEvent) {
	select {
	case ch <- evt:
	default:
	}
}

// Package session runs one goroutine per open auction. The loop owns the
// auction house, the media session and the participant outboxes; every socket
// event and every timer tick for a product funnels through its inbox, so
// per-product state never needs locking.
package session

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/overbid/live-auction-backend/internal/auction"
	"github.com/overbid/live-auction-backend/internal/product"
	"github.com/overbid/live-auction-backend/internal/rtc"
	"github.com/overbid/live-auction-backend/pkg/types"
)

// Timing is the auction clock configuration shared by every session.
type Timing struct {
	Tick        time.Duration
	Description time.Duration
	Grace       time.Duration
}

type Msg interface{ isSessionMsg() }

// Join registers a bidder. Reply reports whether the join took effect;
// rejections are delivered to the outbox as targeted events.
type Join struct {
	ConnID string
	UserID string
	Outbox chan types.ServerEvent
	Reply  chan bool
}

// Leave removes a bidder (disconnect path).
type Leave struct{ ConnID string }

// BidAttempt queues a bid for the current tick window. AtAsk bids at the
// current asking price ("sendAskPrice").
type BidAttempt struct {
	ConnID string
	Price  int64
	AtAsk  bool
}

// Chat relays a message to every participant.
type Chat struct {
	UserID  string
	Message string
}

// ProducerOffer / ProducerCandidate carry the seller-side signaling.
type ProducerOffer struct {
	ConnID string
	SDP    webrtc.SessionDescription
}

type ProducerCandidate struct {
	ConnID    string
	Candidate *webrtc.ICECandidateInit
}

// ConsumerOffer / ConsumerCandidate carry the bidder-side signaling.
type ConsumerOffer struct {
	ConnID string
	SDP    webrtc.SessionDescription
}

type ConsumerCandidate struct {
	ConnID    string
	Candidate *webrtc.ICECandidateInit
}

// ForceExit aborts the auction; only honored from the seller's connection.
type ForceExit struct{ ConnID string }

// ProducerClose is the seller's "close" notice.
type ProducerClose struct{ ConnID string }

// Shutdown tears the session down (registry-initiated close).
type Shutdown struct{}

// Tick runs one evaluation cycle. The internal ticker drives it; tests
// inject it directly with the ticker configured out of the way.
type Tick struct{}

// GetView reflects internal state without data races. Test-only.
type GetView struct{ Reply chan View }

// internal: events coming back from peer connections.
type peerCandidate struct {
	connID    string
	producer  bool
	candidate webrtc.ICECandidateInit
}

type producerTrack struct{ track webrtc.TrackLocal }

func (Join) isSessionMsg()              {}
func (Leave) isSessionMsg()             {}
func (BidAttempt) isSessionMsg()        {}
func (Chat) isSessionMsg()              {}
func (ProducerOffer) isSessionMsg()     {}
func (ProducerCandidate) isSessionMsg() {}
func (ConsumerOffer) isSessionMsg()     {}
func (ConsumerCandidate) isSessionMsg() {}
func (ForceExit) isSessionMsg()         {}
func (ProducerClose) isSessionMsg()     {}
func (Shutdown) isSessionMsg()          {}
func (Tick) isSessionMsg()              {}
func (GetView) isSessionMsg()           {}
func (peerCandidate) isSessionMsg()     {}
func (producerTrack) isSessionMsg()     {}

// View is a race-free copy of session internals for tests.
type View struct {
	Phase        string
	Price        int64
	Participants int
	LastBuyer    string
	LastPrice    int64
	Consumers    int
	Streaming    bool
	Remain       int64
}

// Params collects everything a new session needs.
type Params struct {
	ProductID  string
	Product    product.Product
	SellerConn string
	SellerUser string
	SellerOut  chan types.ServerEvent
	Timing     Timing
	Factory    rtc.Factory
	Log        *zap.Logger
	// OnClosed is invoked once, after teardown, on every close path. The
	// registry uses it to drop its entry and directory associations.
	OnClosed func(productID string)
}

type Session struct {
	inbox     chan Msg
	productID string
	house     *auction.House
	media     *mediaSession
	clients   map[string]chan types.ServerEvent
	users     map[string]string // connID -> userID
	remain    int64             // countdown seconds for the UI timer
	timing    Timing
	factory   rtc.Factory
	log       *zap.Logger
	onClosed  func(string)
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New builds the session, creates the seller's producing peer and announces
// the opening to the seller before the loop starts.
func New(parent context.Context, p Params) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)

	ledger := auction.NewLedger(p.Product.Price, p.Product.PerPrice)
	life := auction.NewLifecycle(
		time.Duration(p.Product.OperateTime)*time.Second,
		p.Timing.Description, p.Timing.Grace, p.Timing.Tick,
	)

	s := &Session{
		inbox:     make(chan Msg, 64),
		productID: p.ProductID,
		house:     auction.NewHouse(p.SellerConn, ledger, life),
		media:     newMediaSession(),
		clients:   map[string]chan types.ServerEvent{p.SellerConn: p.SellerOut},
		users:     map[string]string{p.SellerConn: p.SellerUser},
		remain:    p.Product.OperateTime,
		timing:    p.Timing,
		factory:   p.Factory,
		log:       p.Log,
		onClosed:  p.OnClosed,
		ctx:       ctx,
		cancel:    cancel,
	}

	producer, err := p.Factory.NewPeer(&peerSink{
		ctx:      ctx,
		inbox:    s.inbox,
		connID:   p.SellerConn,
		producer: true,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.media.producer = producer

	s.broadcast(types.ServerEvent{Event: types.EvtUpdateAuctionStatus, NextPrice: ledger.Price()})
	s.broadcast(types.ServerEvent{Event: types.EvtCallSeller, UserID: p.SellerUser})
	s.broadcast(types.ServerEvent{Event: types.EvtJoinUser, UserID: p.SellerUser, UpdatedUserLength: 1})
	s.broadcast(types.ServerEvent{Event: types.EvtAuctionStart, UserID: p.SellerUser})

	go s.loop()
	return s, nil
}

// Inbox exposes the message channel to the registry and tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session has torn down. Senders select on it so a
// message racing teardown is dropped instead of blocking forever.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	ticker := time.NewTicker(s.timing.Tick)
	countdown := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer countdown.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.close()
			return

		case <-ticker.C:
			if s.handleTick() {
				return
			}

		case <-countdown.C:
			s.handleCountdown()

		case m := <-s.inbox:
			s.handle(m)
			if s.closed {
				return
			}
		}
	}
}

func (s *Session) handle(m Msg) {
	switch msg := m.(type) {
	case Tick:
		s.handleTick()

	case Join:
		s.handleJoin(msg)

	case Leave:
		s.dropClient(msg.ConnID)

	case BidAttempt:
		price := msg.Price
		if msg.AtAsk {
			price = s.house.Ledger().Price()
		}
		s.house.SubmitBid(msg.ConnID, price)

	case Chat:
		s.broadcast(types.ServerEvent{
			Event:   types.EvtReceiveMessage,
			UserID:  msg.UserID + " : ",
			Message: msg.Message,
		})

	case ProducerOffer:
		if msg.ConnID != s.house.Seller() {
			return
		}
		s.answer(s.media.producer, msg.ConnID, msg.SDP, types.EvtGetSenderAnswer)

	case ConsumerOffer:
		s.answer(s.media.consumers[msg.ConnID], msg.ConnID, msg.SDP, types.EvtGetReceiverAnswer)

	case ProducerCandidate:
		if msg.ConnID != s.house.Seller() {
			return
		}
		s.addCandidate(s.media.producer, msg.Candidate)

	case ConsumerCandidate:
		s.addCandidate(s.media.consumers[msg.ConnID], msg.Candidate)

	case peerCandidate:
		evt := types.EvtGetReceiverCandidate
		if msg.producer {
			evt = types.EvtGetSenderCandidate
		}
		cand := msg.candidate
		s.send(msg.connID, types.ServerEvent{Event: evt, Candidate: &cand})

	case producerTrack:
		s.media.addTrack(msg.track)

	case ForceExit:
		s.handleForceExit(msg.ConnID)

	case ProducerClose:
		if msg.ConnID == s.house.Seller() {
			s.close()
		}

	case Shutdown:
		s.close()

	case GetView:
		view := View{
			Phase:        s.house.Lifecycle().Phase().String(),
			Price:        s.house.Ledger().Price(),
			Participants: s.house.ParticipantCount(),
			Consumers:    len(s.media.consumers),
			Streaming:    s.media.streaming(),
			Remain:       s.remain,
		}
		if c := s.house.LastConclusion(); c != nil {
			view.LastBuyer = c.Buyer
			view.LastPrice = c.Price
		}
		msg.Reply <- view
	}
}

// handleTick runs one evaluation cycle. A panic inside a tick is logged and
// contained so other auctions keep running.
func (s *Session) handleTick() (terminated bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("auction tick failed",
				zap.String("product", s.productID), zap.Any("panic", r))
		}
	}()

	out, biddingOpened := s.house.Tick()
	if biddingOpened {
		s.broadcast(types.ServerEvent{Event: types.EvtStartAuction})
	}

	switch out.Kind {
	case auction.OutcomeTerminate:
		s.broadcast(types.ServerEvent{
			Event:  types.EvtAuctionExit,
			UserID: s.users[s.house.Seller()],
		})
		s.close()
		return true

	case auction.OutcomeConcluded:
		s.broadcast(types.ServerEvent{
			Event:     types.EvtUpdateAuctionStatus,
			Status:    s.users[out.Winning.Bidder],
			NextPrice: s.house.Ledger().Price(),
		})
	}
	return false
}

func (s *Session) handleCountdown() {
	if s.remain > 0 {
		s.remain--
	}
	s.broadcast(types.ServerEvent{Event: types.EvtRemainTime, Remain: s.remain})
}

func (s *Session) handleJoin(msg Join) {
	if !s.media.streaming() {
		// Producer exists but no media yet: same rejection the bidder
		// would get for a product with no auction at all.
		select {
		case msg.Outbox <- types.ServerEvent{Event: types.EvtDontOpenAuction}:
		default:
		}
		msg.Reply <- false
		return
	}
	if s.house.IsParticipant(msg.ConnID) {
		msg.Reply <- true
		return
	}

	peer, err := s.factory.NewPeer(&peerSink{
		ctx:    s.ctx,
		inbox:  s.inbox,
		connID: msg.ConnID,
	})
	if err != nil {
		s.log.Error("create consumer peer",
			zap.String("product", s.productID), zap.Error(err))
		msg.Reply <- false
		return
	}
	for _, t := range s.media.tracks {
		if err := peer.AddTrack(t); err != nil {
			s.log.Warn("attach track", zap.String("conn", msg.ConnID), zap.Error(err))
		}
	}

	s.media.consumers[msg.ConnID] = peer
	s.clients[msg.ConnID] = msg.Outbox
	s.users[msg.ConnID] = msg.UserID
	s.house.Join(msg.ConnID)
	msg.Reply <- true

	s.send(msg.ConnID, types.ServerEvent{
		Event:  types.EvtCallSeller,
		UserID: s.users[s.house.Seller()],
	})
	s.broadcast(types.ServerEvent{
		Event:             types.EvtJoinUser,
		UserID:            msg.UserID,
		UpdatedUserLength: s.house.ParticipantCount(),
	})
	status := ""
	if c := s.house.LastConclusion(); c != nil {
		status = s.users[c.Buyer]
	}
	s.broadcast(types.ServerEvent{
		Event:     types.EvtUpdateAuctionStatus,
		Status:    status,
		NextPrice: s.house.Ledger().Price(),
	})
}

func (s *Session) handleForceExit(connID string) {
	if connID != s.house.Seller() {
		return
	}
	var winner string
	if c := s.house.LastConclusion(); c != nil {
		winner = c.Buyer
	}
	for id := range s.clients {
		if id == s.house.Seller() || id == winner {
			continue
		}
		s.send(id, types.ServerEvent{Event: types.EvtForceAuctionExit})
	}
	s.close()
}

// answer runs the offer/answer half of a negotiation for one connection. A
// missing peer is a silent no-op; a previously set local description is
// never overwritten.
func (s *Session) answer(peer rtc.Peer, connID string, sdp webrtc.SessionDescription, evt string) {
	if peer == nil {
		return
	}
	if err := peer.SetRemoteDescription(sdp); err != nil {
		s.log.Warn("set remote description", zap.String("conn", connID), zap.Error(err))
		return
	}
	answer, err := peer.CreateAnswer()
	if err != nil {
		s.log.Warn("create answer", zap.String("conn", connID), zap.Error(err))
		return
	}
	if peer.LocalDescription() == nil {
		if err := peer.SetLocalDescription(answer); err != nil {
			s.log.Warn("set local description", zap.String("conn", connID), zap.Error(err))
			return
		}
	}
	s.send(connID, types.ServerEvent{Event: evt, SDP: &answer})
}

// addCandidate forwards an ICE candidate. Candidates may legitimately race
// teardown, so a missing peer or candidate is not an error.
func (s *Session) addCandidate(peer rtc.Peer, cand *webrtc.ICECandidateInit) {
	if peer == nil || cand == nil {
		return
	}
	if err := peer.AddICECandidate(*cand); err != nil {
		s.log.Debug("add ice candidate", zap.Error(err))
	}
}

// dropClient removes a bidder on leave, disconnect or slow-consumer drop.
func (s *Session) dropClient(connID string) {
	if connID == s.house.Seller() {
		return
	}
	delete(s.clients, connID)
	delete(s.users, connID)
	s.house.Leave(connID)
	s.media.dropConsumer(connID, s.log)
}

// close tears the session down. Idempotent: reachable from the tick loop,
// forceExit, the seller's close notice, disconnects and registry shutdown.
func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	s.house.Close()
	s.media.closeAll(s.log)
	clear(s.clients)
	clear(s.users)
	s.cancel()
	if s.onClosed != nil {
		s.onClosed(s.productID)
	}
}

func (s *Session) send(connID string, evt types.ServerEvent) {
	ch := s.clients[connID]
	if ch == nil {
		return
	}
	select {
	case ch <- evt:
	default:
		s.dropClient(connID)
	}
}

func (s *Session) broadcast(evt types.ServerEvent) {
	for id, ch := range s.clients {
		select {
		case ch <- evt:
		default:
			// Slow client: drop them rather than stall the auction.
			s.dropClient(id)
		}
	}
}

// peerSink routes peer-connection events back onto the session loop. Sends
// are abandoned once the session is gone; late candidates are a legal race.
type peerSink struct {
	ctx      context.Context
	inbox    chan<- Msg
	connID   string
	producer bool
}

func (ps *peerSink) HandleCandidate(cand webrtc.ICECandidateInit) {
	select {
	case ps.inbox <- peerCandidate{connID: ps.connID, producer: ps.producer, candidate: cand}:
	case <-ps.ctx.Done():
	}
}

func (ps *peerSink) HandleTrack(track webrtc.TrackLocal) {
	select {
	case ps.inbox <- producerTrack{track: track}:
	case <-ps.ctx.Done():
	}
}

package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/overbid/live-auction-backend/internal/product"
	"github.com/overbid/live-auction-backend/internal/rtc"
	"github.com/overbid/live-auction-backend/internal/session"
	"github.com/overbid/live-auction-backend/pkg/types"
)

var testTiming = session.Timing{
	Tick:        time.Hour,
	Description: 12 * time.Hour,
	Grace:       2 * time.Hour,
}

type fakeStore map[string]product.Product

func (s fakeStore) ProductForAuction(_ context.Context, id string) (product.Product, error) {
	p, ok := s[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func testStore() fakeStore {
	day := int64((24 * time.Hour).Seconds())
	return fakeStore{
		"p1": {ID: "p1", Price: 100, PerPrice: 10, OperateTime: day},
		"p2": {ID: "p2", Price: 500, PerPrice: 50, OperateTime: day},
	}
}

func waitFor(t *testing.T, ch <-chan types.ServerEvent, event string) types.ServerEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Event == event {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return types.ServerEvent{}
		}
	}
}

func lookup(t *testing.T, r *Registry, connID string) DirEntry {
	t.Helper()
	reply := make(chan DirEntry, 1)
	r.Inbox() <- Lookup{ConnID: connID, Reply: reply}
	select {
	case d := <-reply:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out on directory lookup")
		return DirEntry{}
	}
}

func listAuctions(t *testing.T, r *Registry) []Summary {
	t.Helper()
	reply := make(chan []Summary, 1)
	r.Inbox() <- List{Reply: reply}
	select {
	case l := <-reply:
		return l
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out listing auctions")
		return nil
	}
}

type regFixture struct {
	reg     *Registry
	factory *rtc.FakeFactory
}

func newRegFixture(t *testing.T) *regFixture {
	t.Helper()
	factory := rtc.NewFakeFactory()
	reg := New(context.Background(), testStore(), factory, testTiming, zap.NewNop())
	return &regFixture{reg: reg, factory: factory}
}

func (f *regFixture) open(t *testing.T, connID, userID, productID string) chan types.ServerEvent {
	t.Helper()
	out := make(chan types.ServerEvent, 64)
	f.reg.Inbox() <- Identify{ConnID: connID, UserID: userID}
	f.reg.Inbox() <- Open{ConnID: connID, UserID: userID, ProductID: productID, Outbox: out}
	waitFor(t, out, types.EvtAuctionStart)
	return out
}

// stream pushes a fake track through the most recent producer peer so
// bidders can join.
func (f *regFixture) stream(i int) {
	f.factory.Peer(i).Sink.HandleTrack(&rtc.FakeTrack{TrackID: "video0", Stream: "s"})
}

func TestOpenAndDuplicateOpenIgnored(t *testing.T) {
	f := newRegFixture(t)
	out := f.open(t, "conn-s", "alice", "p1")

	if d := lookup(t, f.reg, "conn-s"); d.ProductID != "p1" || d.UserID != "alice" {
		t.Fatalf("directory = %+v, want alice@p1", d)
	}

	// A duplicate open must not build a second auction or peer.
	f.reg.Inbox() <- Open{ConnID: "conn-s2", UserID: "mallory", ProductID: "p1", Outbox: out}
	if l := listAuctions(t, f.reg); len(l) != 1 {
		t.Fatalf("%d auctions for p1, want 1", len(l))
	}
	if n := f.factory.PeerCount(); n != 1 {
		t.Fatalf("%d peers created, want 1", n)
	}
}

func TestOpenUnknownProductAborts(t *testing.T) {
	f := newRegFixture(t)
	out := make(chan types.ServerEvent, 8)
	f.reg.Inbox() <- Open{ConnID: "conn-s", UserID: "alice", ProductID: "nope", Outbox: out}

	waitFor(t, out, types.EvtDontOpenAuction)
	if l := listAuctions(t, f.reg); len(l) != 0 {
		t.Fatalf("auction created despite failed lookup")
	}
	if d := lookup(t, f.reg, "conn-s"); d.ProductID != "" {
		t.Fatalf("directory association left behind: %+v", d)
	}
}

func TestJoinBeforeOpenRejected(t *testing.T) {
	f := newRegFixture(t)
	out := make(chan types.ServerEvent, 8)
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p1", Outbox: out}
	waitFor(t, out, types.EvtDontOpenAuction)
}

func TestJoinSecondAuctionRedirected(t *testing.T) {
	f := newRegFixture(t)
	f.open(t, "conn-s1", "alice", "p1")
	f.stream(0)
	f.open(t, "conn-s2", "carol", "p2")
	f.stream(1)

	outB := make(chan types.ServerEvent, 64)
	f.reg.Inbox() <- Identify{ConnID: "conn-b", UserID: "bob"}
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p1", Outbox: outB}
	waitFor(t, outB, types.EvtCallSeller)

	// Already in p1: joining p2 is refused and points back to p1.
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p2", Outbox: outB}
	evt := waitFor(t, outB, types.EvtGoUserAuction)
	if evt.OtherAuctionProductID != "p1" {
		t.Fatalf("redirected to %q, want p1", evt.OtherAuctionProductID)
	}
	if d := lookup(t, f.reg, "conn-b"); d.ProductID != "p1" {
		t.Fatalf("directory moved to %q, want p1", d.ProductID)
	}
	// No consumer peer was built for p2: seller peers x2 + bob's for p1.
	if n := f.factory.PeerCount(); n != 3 {
		t.Fatalf("%d peers created, want 3", n)
	}
}

func TestCloseClearsDirectoryAndPeers(t *testing.T) {
	f := newRegFixture(t)
	f.open(t, "conn-s", "alice", "p1")
	f.stream(0)

	outB := make(chan types.ServerEvent, 64)
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p1", Outbox: outB}
	waitFor(t, outB, types.EvtCallSeller)

	f.reg.Inbox() <- Close{ProductID: "p1"}
	f.reg.Inbox() <- Close{ProductID: "p1"} // idempotent

	if l := listAuctions(t, f.reg); len(l) != 0 {
		t.Fatalf("auction still listed after close")
	}
	if d := lookup(t, f.reg, "conn-b"); d.ProductID != "" {
		t.Fatalf("bidder still associated with %q after close", d.ProductID)
	}
	if d := lookup(t, f.reg, "conn-s"); d.ProductID != "" {
		t.Fatalf("seller still associated with %q after close", d.ProductID)
	}

	deadline := time.After(2 * time.Second)
	for !f.factory.Peer(0).IsClosed() || !f.factory.Peer(1).IsClosed() {
		select {
		case <-deadline:
			t.Fatalf("peers left open after close")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSellerDisconnectClosesAuction(t *testing.T) {
	f := newRegFixture(t)
	f.open(t, "conn-s", "alice", "p1")
	f.stream(0)

	outB := make(chan types.ServerEvent, 64)
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p1", Outbox: outB}
	waitFor(t, outB, types.EvtCallSeller)

	f.reg.Inbox() <- Disconnect{ConnID: "conn-s"}

	if l := listAuctions(t, f.reg); len(l) != 0 {
		t.Fatalf("auction survived the seller's disconnect")
	}
	if d := lookup(t, f.reg, "conn-b"); d.ProductID != "" {
		t.Fatalf("bidder still associated after seller disconnect")
	}
}

func TestBidderDisconnectLeavesAuctionRunning(t *testing.T) {
	f := newRegFixture(t)
	f.open(t, "conn-s", "alice", "p1")
	f.stream(0)

	outB := make(chan types.ServerEvent, 64)
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p1", Outbox: outB}
	waitFor(t, outB, types.EvtCallSeller)

	f.reg.Inbox() <- Disconnect{ConnID: "conn-b"}

	if l := listAuctions(t, f.reg); len(l) != 1 {
		t.Fatalf("auction closed by a bidder disconnect")
	}
	if d := lookup(t, f.reg, "conn-b"); d.UserID != "" {
		t.Fatalf("directory row survived disconnect: %+v", d)
	}
}

func TestForceExitFromNonSellerIgnored(t *testing.T) {
	f := newRegFixture(t)
	f.open(t, "conn-s", "alice", "p1")
	f.stream(0)

	outB := make(chan types.ServerEvent, 64)
	f.reg.Inbox() <- Join{ConnID: "conn-b", UserID: "bob", ProductID: "p1", Outbox: outB}
	waitFor(t, outB, types.EvtCallSeller)

	f.reg.Inbox() <- ForceExit{ConnID: "conn-b"}

	// Give the pipeline a moment, then confirm the auction is still up.
	time.Sleep(50 * time.Millisecond)
	if l := listAuctions(t, f.reg); len(l) != 1 {
		t.Fatalf("non-seller forceExit closed the auction")
	}
}

func TestSessionSelfCloseCleansRegistry(t *testing.T) {
	// Run the auction clock for real, fast enough that the quiet grace
	// window expires within the test: the session terminates itself and
	// the registry must drop its entry through the OnClosed hook.
	factory := rtc.NewFakeFactory()
	fast := session.Timing{
		Tick:        50 * time.Millisecond,
		Description: 100 * time.Millisecond,
		Grace:       50 * time.Millisecond,
	}
	store := fakeStore{"p1": {ID: "p1", Price: 100, PerPrice: 10, OperateTime: 60}}
	reg := New(context.Background(), store, factory, fast, zap.NewNop())

	out := make(chan types.ServerEvent, 64)
	reg.Inbox() <- Identify{ConnID: "conn-s", UserID: "alice"}
	reg.Inbox() <- Open{ConnID: "conn-s", UserID: "alice", ProductID: "p1", Outbox: out}
	waitFor(t, out, types.EvtAuctionStart)
	waitFor(t, out, types.EvtAuctionExit)

	deadline := time.After(2 * time.Second)
	for {
		if len(listAuctions(t, reg)) == 0 && lookup(t, reg, "conn-s").ProductID == "" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("registry entry survived the session's self-close")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// FakeFactory is an in-memory Factory for tests. Each created peer keeps its
// sink so tests can push candidates and tracks as if they came off the wire.
type FakeFactory struct {
	mu    sync.Mutex
	Peers []*FakePeer
}

func NewFakeFactory() *FakeFactory { return &FakeFactory{} }

func (f *FakeFactory) NewPeer(sink EventSink) (Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &FakePeer{Sink: sink}
	f.Peers = append(f.Peers, p)
	return p, nil
}

// PeerCount returns how many peers have been created so far.
func (f *FakeFactory) PeerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Peers)
}

// Peer returns the i-th created peer, or nil.
func (f *FakeFactory) Peer(i int) *FakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.Peers) {
		return nil
	}
	return f.Peers[i]
}

// FakePeer records every signaling call. A mutex guards the fields because
// tests inspect them from outside the session goroutine.
type FakePeer struct {
	Sink EventSink

	mu         sync.Mutex
	remote     *webrtc.SessionDescription
	local      *webrtc.SessionDescription
	Candidates []webrtc.ICECandidateInit
	Tracks     []webrtc.TrackLocal
	Closed     bool
}

func (p *FakePeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &sdp
	return nil
}

func (p *FakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake"}, nil
}

func (p *FakePeer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &sdp
	return nil
}

func (p *FakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *FakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *FakePeer) AddICECandidate(cand webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Candidates = append(p.Candidates, cand)
	return nil
}

func (p *FakePeer) AddTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Tracks = append(p.Tracks, track)
	return nil
}

func (p *FakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

func (p *FakePeer) TrackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Tracks)
}

func (p *FakePeer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// FakeTrack satisfies webrtc.TrackLocal for fan-out tests.
type FakeTrack struct {
	TrackID  string
	Stream   string
	TrackRID string
}

func (t *FakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}

func (t *FakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (t *FakeTrack) ID() string                            { return t.TrackID }
func (t *FakeTrack) RID() string                           { return t.TrackRID }
func (t *FakeTrack) StreamID() string                      { return t.Stream }
func (t *FakeTrack) Kind() webrtc.RTPCodecType             { return webrtc.RTPCodecTypeVideo }

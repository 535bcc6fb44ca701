// Package rtc wraps the peer-connection machinery behind small interfaces so
// the auction session can relay signaling without knowing about pion, and so
// tests can run against an in-memory fake.
package rtc

import "github.com/pion/webrtc/v4"

// EventSink receives the asynchronous events a peer connection produces.
// Implementations must be safe to call from the peer's own goroutines; the
// session routes them back onto its loop through its inbox.
type EventSink interface {
	// HandleCandidate fires for every locally gathered ICE candidate.
	HandleCandidate(cand webrtc.ICECandidateInit)
	// HandleTrack fires once per inbound media track, already wrapped as a
	// local track that can be fanned out to consumer peers.
	HandleTrack(track webrtc.TrackLocal)
}

// Peer is the slice of a peer connection the signaling relay needs.
type Peer interface {
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(cand webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) error
	Close() error
}

// Factory creates peer connections wired to an event sink.
type Factory interface {
	NewPeer(sink EventSink) (Peer, error)
}

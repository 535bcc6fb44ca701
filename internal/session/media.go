package session

import (
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/overbid/live-auction-backend/internal/rtc"
)

// mediaSession holds one auction's media plumbing: the seller's producing
// peer, the live tracks mirrored off it, and one consuming peer per bidder.
// Only the owning session goroutine touches it.
type mediaSession struct {
	producer  rtc.Peer
	streamID  string
	tracks    []webrtc.TrackLocal
	consumers map[string]rtc.Peer
}

func newMediaSession() *mediaSession {
	return &mediaSession{consumers: make(map[string]rtc.Peer)}
}

// streaming reports whether the seller's media has arrived. Bidders cannot
// join before the first track lands.
func (m *mediaSession) streaming() bool { return len(m.tracks) > 0 }

// addTrack records an inbound track. The first stream to arrive wins; tracks
// belonging to any other stream are ignored.
func (m *mediaSession) addTrack(t webrtc.TrackLocal) {
	if m.streamID == "" {
		m.streamID = t.StreamID()
	}
	if t.StreamID() != m.streamID {
		return
	}
	m.tracks = append(m.tracks, t)
}

// dropConsumer closes and forgets one bidder's peer. Unknown ids are a no-op.
func (m *mediaSession) dropConsumer(connID string, log *zap.Logger) {
	p := m.consumers[connID]
	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		log.Warn("close consumer peer", zap.String("conn", connID), zap.Error(err))
	}
	delete(m.consumers, connID)
}

// closeAll tears down every peer connection. Errors are logged and teardown
// keeps going; this runs on every auction-close path and must finish.
func (m *mediaSession) closeAll(log *zap.Logger) {
	if m.producer != nil {
		if err := m.producer.Close(); err != nil {
			log.Warn("close producer peer", zap.Error(err))
		}
		m.producer = nil
	}
	for id, p := range m.consumers {
		if err := p.Close(); err != nil {
			log.Warn("close consumer peer", zap.String("conn", id), zap.Error(err))
		}
		delete(m.consumers, id)
	}
	m.tracks = nil
}

package call

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/babelmeet/babelmeet/internal/clock"
	"github.com/babelmeet/babelmeet/internal/media"
)

// Session is the unit of call state: one logical call to one peer. At most
// one session exists per client; a new call always builds a fresh session
// instead of reusing a terminated one. All fields are owned by the
// Manager's event loop, so no locking happens here.
type Session struct {
	peerID    string
	createdAt time.Time
	state     State

	peer  MediaPeer
	media media.Handle

	// remoteOffer holds the offer received with call_request until the
	// user accepts; only set on callee sessions.
	remoteOffer *webrtc.SessionDescription

	// remoteSet flips once the remote description is installed; until
	// then inbound candidates go to the buffer.
	remoteSet bool
	buffer    CandidateBuffer

	ringTimer *clock.Timer
}

// Peer returns the remote party's identity.
func (s *Session) Peer() string { return s.peerID }

// State returns the session's lifecycle state.
func (s *Session) State() State { return s.state }

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// addCandidate applies a candidate immediately when the remote description
// is set, and buffers it otherwise. Application errors are returned for
// logging; they never terminate the session.
func (s *Session) addCandidate(c webrtc.ICECandidateInit) error {
	if !s.remoteSet {
		s.buffer.Offer(c)
		return nil
	}
	return s.peer.AddCandidate(c)
}

// flushCandidates applies everything buffered before the remote
// description arrived, in original order. Individual failures are
// reported through report and do not stop the flush.
func (s *Session) flushCandidates(report func(error)) {
	for _, c := range s.buffer.Drain() {
		if err := s.peer.AddCandidate(c); err != nil {
			report(err)
		}
	}
}

// stopRingTimer cancels the auto-decline timer if one is armed.
func (s *Session) stopRingTimer() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// release stops the media handle and closes the peer connection. Safe on
// partially constructed sessions and idempotent via the underlying types.
func (s *Session) release() {
	if s.media != nil {
		s.media.Stop()
	}
	if s.peer != nil {
		s.peer.Close()
	}
}

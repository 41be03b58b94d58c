package call

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/babelmeet/babelmeet/internal/caption"
	"github.com/babelmeet/babelmeet/internal/clock"
	"github.com/babelmeet/babelmeet/internal/event"
	"github.com/babelmeet/babelmeet/internal/media"
	"github.com/babelmeet/babelmeet/internal/signaling"
	"github.com/babelmeet/babelmeet/internal/track"
)

// RingTimeout is how long an unanswered incoming call rings before it is
// automatically declined.
const RingTimeout = 30 * time.Second

// Sender is the slice of the signaling transport the Manager writes to.
type Sender interface {
	Send(msg *signaling.Message) error
}

// Deps are the collaborators a Manager is constructed from. Everything is
// injected so tests can run the full state machine without a network.
type Deps struct {
	Transport Sender
	Clock     clock.Clock
	NewPeer   PeerFactory
	NewMedia  func() (media.Handle, error)

	// Dispatch schedules a function onto the owning event loop. Peer and
	// timer callbacks arrive on foreign goroutines and are marshalled
	// through it, which is what keeps the Manager lock-free.
	Dispatch func(func())
}

// Manager owns the single active call session and drives its state
// machine. Every method except Subscribe must be called from the owning
// event loop; message arrival order is unreliable, processing order is not.
type Manager struct {
	deps     Deps
	identity string
	bus      *event.Bus[Event]
	session  *Session
}

// NewManager builds a Manager. The identity is bound later, once the
// transport's registration echo arrives.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, bus: event.NewBus[Event]()}
}

// SetIdentity binds the transport-issued identity. The identity is the
// glare tie-break key, so it must be set before calls are placed.
func (m *Manager) SetIdentity(id string) {
	m.identity = id
}

// Subscribe registers an event consumer. Safe from any goroutine.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.Subscribe()
}

// Session returns the active session, or nil when idle.
func (m *Manager) Session() *Session {
	return m.session
}

// StartCall places an outbound call. Valid only while no session exists;
// a second concurrent call is rejected without touching the active one.
func (m *Manager) StartCall(peerID string) error {
	if m.session != nil {
		return newError("start call", m.session.state, ErrCallInProgress)
	}

	s := &Session{
		peerID:    peerID,
		createdAt: m.deps.Clock.Now(),
		state:     StateCalling,
	}
	if err := m.attachMedia(s); err != nil {
		return newError("start call", StateIdle, err)
	}

	offer, err := s.peer.CreateOffer()
	if err != nil {
		s.release()
		return newError("start call", StateIdle, err)
	}

	msg, err := signaling.NewMessage(signaling.TypeCallRequest, signaling.SignalPayload{
		Type: "offer",
		SDP:  offer.SDP,
	})
	if err != nil {
		s.release()
		return newError("start call", StateIdle, err)
	}
	msg.To = peerID
	if err := m.deps.Transport.Send(msg); err != nil {
		s.release()
		return newError("start call", StateIdle, err)
	}

	m.session = s
	m.bus.Publish(StateChanged{Peer: peerID, State: StateCalling})
	return nil
}

// Accept answers a ringing incoming call.
func (m *Manager) Accept() error {
	s := m.session
	if s == nil {
		return newError("accept", StateIdle, ErrNoSession)
	}
	if s.state != StateRinging {
		return newError("accept", s.state, ErrInvalidState)
	}

	s.stopRingTimer()
	if err := m.attachMedia(s); err != nil {
		m.terminate(s, "local media failed: "+err.Error(), true)
		return newError("accept", StateRinging, err)
	}

	answer, err := s.peer.CreateAnswer(*s.remoteOffer)
	if err != nil {
		m.terminate(s, "negotiation failed: "+err.Error(), true)
		return newError("accept", StateRinging, err)
	}
	s.remoteSet = true
	s.remoteOffer = nil
	s.flushCandidates(func(err error) {
		slog.Debug("discarding unusable buffered candidate", "error", err)
	})

	msg, err := signaling.NewMessage(signaling.TypeCallAnswer, signaling.SignalPayload{
		Type: "answer",
		SDP:  answer.SDP,
	})
	if err != nil {
		m.terminate(s, "negotiation failed: "+err.Error(), true)
		return newError("accept", StateRinging, err)
	}
	msg.To = s.peerID
	if err := m.deps.Transport.Send(msg); err != nil {
		m.terminate(s, "signaling failed: "+err.Error(), false)
		return newError("accept", StateRinging, err)
	}

	m.setState(s, StateConnecting)
	return nil
}

// Decline rejects a ringing incoming call and returns the client to idle.
func (m *Manager) Decline() error {
	s := m.session
	if s == nil {
		return newError("decline", StateIdle, ErrNoSession)
	}
	if s.state != StateRinging {
		return newError("decline", s.state, ErrInvalidState)
	}

	s.stopRingTimer()
	m.sendTerminal(signaling.TypeCallDecline, s.peerID, "declined")
	m.discard(s, "declined")
	return nil
}

// EndCall terminates the active session from any state. Media handles are
// released on every path; calling it with no session is a no-op, which
// makes repeated hangups idempotent.
func (m *Manager) EndCall() error {
	s := m.session
	if s == nil {
		return nil
	}
	m.terminate(s, "ended", true)
	return nil
}

// ToggleMute flips the local capture mute flag. Pure side channel: it
// does not touch the state machine.
func (m *Manager) ToggleMute() (bool, error) {
	s := m.session
	if s == nil || s.media == nil {
		return false, ErrNoSession
	}
	muted := !s.media.Muted()
	s.media.SetMuted(muted)
	return muted, nil
}

// SendCaption pushes a caption frame to the remote side of the active call.
func (m *Manager) SendCaption(msg caption.Message) error {
	s := m.session
	if s == nil || s.peer == nil {
		return ErrNoSession
	}
	return s.peer.SendCaption(msg)
}

// HandleTransportDown force-terminates the active session when the
// signaling transport dies for good. Without signaling the call cannot be
// renegotiated or cleanly ended, so it is failed locally.
func (m *Manager) HandleTransportDown() {
	if s := m.session; s != nil {
		m.terminate(s, "signaling transport lost", false)
	}
}

// HandleMessage processes one inbound signaling message addressed to the
// call layer.
func (m *Manager) HandleMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeCallRequest:
		m.handleCallRequest(msg)
	case signaling.TypeCallAnswer:
		m.handleCallAnswer(msg)
	case signaling.TypeICECandidate:
		m.handleCandidate(msg)
	case signaling.TypeCallDecline:
		m.handleTerminal(msg, "declined by peer")
	case signaling.TypeUserBusy:
		m.handleTerminal(msg, "peer busy")
	case signaling.TypeEndCall:
		m.handleTerminal(msg, "ended by peer")
	case signaling.TypeCallFailed:
		var p signaling.EndCallPayload
		reason := "call failed"
		if err := msg.Decode(&p); err == nil && p.Reason != "" {
			reason = p.Reason
		}
		m.handleTerminal(msg, reason)
	}
}

func (m *Manager) handleCallRequest(msg *signaling.Message) {
	var offer signaling.SignalPayload
	if err := msg.Decode(&offer); err != nil || offer.SDP == "" {
		slog.Debug("discarding malformed call request", "from", msg.From)
		return
	}
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}

	s := m.session
	switch {
	case s == nil:
		m.ring(msg.From, remote)

	case s.state == StateCalling && s.peerID == msg.From:
		m.resolveGlare(s, remote)

	default:
		// Exactly one active session per client: anyone else gets busy.
		m.sendTerminal(signaling.TypeUserBusy, msg.From, "busy")
	}
}

// ring creates a callee session and arms the auto-decline timer.
func (m *Manager) ring(from string, offer webrtc.SessionDescription) {
	s := &Session{
		peerID:      from,
		createdAt:   m.deps.Clock.Now(),
		state:       StateRinging,
		remoteOffer: &offer,
	}
	s.ringTimer = m.deps.Clock.AfterFunc(RingTimeout, func() {
		m.deps.Dispatch(func() { m.ringExpired(s) })
	})
	m.session = s
	m.bus.Publish(IncomingCall{Peer: from})
	m.bus.Publish(StateChanged{Peer: from, State: StateRinging})
}

// ringExpired fires once when an incoming call goes unanswered for
// RingTimeout. Exactly one decline goes out and the client returns to idle.
func (m *Manager) ringExpired(s *Session) {
	if m.session != s || s.state != StateRinging {
		return
	}
	m.sendTerminal(signaling.TypeCallDecline, s.peerID, "unanswered")
	m.discard(s, "ring timeout")
}

// resolveGlare handles both sides dialing each other inside the same
// negotiation window. The lexicographically lower identity's offer wins;
// the loser abandons its own offer and answers as the callee. Same
// tie-break in both directions, so exactly one negotiation survives.
func (m *Manager) resolveGlare(s *Session, remote webrtc.SessionDescription) {
	if m.identity < s.peerID {
		slog.Debug("glare: local offer wins, ignoring remote offer", "peer", s.peerID)
		return
	}

	slog.Debug("glare: remote offer wins, answering as callee", "peer", s.peerID)

	// The outgoing offer's peer connection is unusable for answering a
	// different offer; rebuild it around the same media handle.
	if s.peer != nil {
		s.peer.Close()
		s.peer = nil
	}
	peer, err := m.deps.NewPeer(s.media, m.hooks(s))
	if err != nil {
		m.terminate(s, "negotiation failed: "+err.Error(), true)
		return
	}
	s.peer = peer

	answer, err := peer.CreateAnswer(remote)
	if err != nil {
		m.terminate(s, "negotiation failed: "+err.Error(), true)
		return
	}
	s.remoteSet = true
	s.flushCandidates(func(err error) {
		slog.Debug("discarding candidate from superseded negotiation", "error", err)
	})

	msg, err := signaling.NewMessage(signaling.TypeCallAnswer, signaling.SignalPayload{
		Type: "answer",
		SDP:  answer.SDP,
	})
	if err != nil {
		m.terminate(s, "negotiation failed: "+err.Error(), true)
		return
	}
	msg.To = s.peerID
	if err := m.deps.Transport.Send(msg); err != nil {
		m.terminate(s, "signaling failed: "+err.Error(), false)
		return
	}

	m.setState(s, StateConnecting)
}

func (m *Manager) handleCallAnswer(msg *signaling.Message) {
	s := m.session
	if s == nil || s.state != StateCalling || s.peerID != msg.From {
		slog.Debug("discarding unexpected call answer", "from", msg.From)
		return
	}

	var answer signaling.SignalPayload
	if err := msg.Decode(&answer); err != nil || answer.SDP == "" {
		slog.Debug("discarding malformed call answer", "from", msg.From)
		return
	}

	if err := s.peer.SetRemoteAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		m.terminate(s, "negotiation failed: "+err.Error(), true)
		return
	}
	s.remoteSet = true
	s.flushCandidates(func(err error) {
		slog.Debug("discarding unusable buffered candidate", "error", err)
	})

	m.bus.Publish(Answered{Peer: s.peerID})
	m.setState(s, StateConnecting)
}

func (m *Manager) handleCandidate(msg *signaling.Message) {
	s := m.session
	if s == nil || s.peerID != msg.From {
		// Candidate for a session that already ended: an expected race,
		// silently discarded.
		return
	}

	var p signaling.CandidatePayload
	if err := msg.Decode(&p); err != nil {
		slog.Debug("discarding malformed candidate payload", "from", msg.From)
		return
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Candidate, &c); err != nil {
		slog.Debug("discarding malformed candidate", "from", msg.From)
		return
	}

	if err := s.addCandidate(c); err != nil {
		slog.Debug("discarding unusable candidate", "from", msg.From, "error", err)
	}
}

func (m *Manager) handleTerminal(msg *signaling.Message, reason string) {
	s := m.session
	if s == nil || (msg.From != "" && s.peerID != msg.From) {
		return
	}
	m.terminate(s, reason, false)
}

// attachMedia acquires the local capture handle and builds the peer
// connection around it.
func (m *Manager) attachMedia(s *Session) error {
	mediaHandle, err := m.deps.NewMedia()
	if err != nil {
		return err
	}
	s.media = mediaHandle

	peer, err := m.deps.NewPeer(mediaHandle, m.hooks(s))
	if err != nil {
		mediaHandle.Stop()
		s.media = nil
		return err
	}
	s.peer = peer
	return nil
}

// hooks wires a session's peer callbacks back onto the event loop. Each
// callback checks the session is still current, so events from a torn-down
// peer connection cannot corrupt a newer session.
func (m *Manager) hooks(s *Session) PeerHooks {
	return PeerHooks{
		OnCandidate: func(c webrtc.ICECandidateInit) {
			m.deps.Dispatch(func() {
				if m.session != s {
					return
				}
				raw, err := json.Marshal(c)
				if err != nil {
					return
				}
				msg, err := signaling.NewMessage(signaling.TypeICECandidate, signaling.CandidatePayload{Candidate: raw})
				if err != nil {
					return
				}
				msg.To = s.peerID
				if err := m.deps.Transport.Send(msg); err != nil {
					slog.Debug("failed to send candidate", "error", err)
				}
			})
		},
		OnConnected: func() {
			m.deps.Dispatch(func() {
				if m.session != s || s.state != StateConnecting {
					return
				}
				m.setState(s, StateActive)
			})
		},
		OnFailed: func(reason string) {
			m.deps.Dispatch(func() {
				if m.session != s {
					return
				}
				if s.state != StateConnecting && s.state != StateActive {
					return
				}
				m.terminate(s, reason, true)
			})
		},
		OnTrack: func(name string, kind track.Kind) {
			m.deps.Dispatch(func() {
				if m.session != s {
					return
				}
				m.bus.Publish(RemoteTrack{Desc: track.Describe(s.peerID, kind, name)})
			})
		},
		OnCaption: func(frame caption.Message) {
			m.deps.Dispatch(func() {
				if m.session != s {
					return
				}
				m.bus.Publish(Caption{Msg: frame})
			})
		},
	}
}

func (m *Manager) setState(s *Session, state State) {
	s.state = state
	m.bus.Publish(StateChanged{Peer: s.peerID, State: state})
}

// sendTerminal sends a best-effort terminal message (decline, busy,
// end_call) to a peer. Failures are logged and swallowed: the local
// transition happens regardless.
func (m *Manager) sendTerminal(msgType, to, reason string) {
	msg, err := signaling.NewMessage(msgType, signaling.EndCallPayload{Reason: reason})
	if err != nil {
		return
	}
	msg.To = to
	if err := m.deps.Transport.Send(msg); err != nil {
		slog.Debug("failed to send terminal message", "type", msgType, "error", err)
	}
}

// terminate moves a session to Ended, releases its media handle and peer
// connection, optionally notifies the peer, and discards the session so
// the client returns to idle.
func (m *Manager) terminate(s *Session, reason string, notifyPeer bool) {
	s.stopRingTimer()
	s.release()
	if notifyPeer {
		m.sendTerminal(signaling.TypeEndCall, s.peerID, reason)
	}
	s.state = StateEnded
	m.session = nil
	m.bus.Publish(StateChanged{Peer: s.peerID, State: StateEnded})
	m.bus.Publish(Ended{Peer: s.peerID, Reason: reason})
}

// discard drops a session that never acquired media (ringing declines and
// timeouts). The client returns to idle without an Ended state, matching
// the short-circuit branch of the lifecycle.
func (m *Manager) discard(s *Session, reason string) {
	s.release()
	s.state = StateIdle
	m.session = nil
	m.bus.Publish(StateChanged{Peer: s.peerID, State: StateIdle})
	m.bus.Publish(Ended{Peer: s.peerID, Reason: reason})
}

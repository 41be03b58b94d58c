package call

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/babelmeet/babelmeet/internal/caption"
	"github.com/babelmeet/babelmeet/internal/config"
	"github.com/babelmeet/babelmeet/internal/media"
	"github.com/babelmeet/babelmeet/internal/track"
)

// MediaPeer is the slice of a WebRTC peer connection the session state
// machine needs. The production implementation wraps pion; tests use an
// in-memory fake so negotiation can be driven without a network.
type MediaPeer interface {
	// CreateOffer builds and installs the local offer description.
	CreateOffer() (webrtc.SessionDescription, error)

	// CreateAnswer installs the remote offer and builds the local answer.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// SetRemoteAnswer installs the answer to a previously created offer.
	SetRemoteAnswer(answer webrtc.SessionDescription) error

	// AddCandidate applies a remote ICE candidate. Only meaningful once a
	// remote description is installed.
	AddCandidate(c webrtc.ICECandidateInit) error

	// SendCaption pushes a caption frame to the remote side. Fails until
	// the captions data channel is open.
	SendCaption(m caption.Message) error

	// Close tears the connection down. Idempotent.
	Close() error
}

// PeerHooks are the callbacks a MediaPeer fires as the media path makes
// progress. Implementations may call them from arbitrary goroutines; the
// Manager marshals them onto its event loop.
type PeerHooks struct {
	// OnCandidate fires for each locally gathered ICE candidate.
	OnCandidate func(webrtc.ICECandidateInit)

	// OnConnected fires once when the media path reaches connected.
	OnConnected func()

	// OnFailed fires when the media path reports disconnected or failed.
	OnFailed func(reason string)

	// OnTrack fires for each inbound remote track.
	OnTrack func(name string, kind track.Kind)

	// OnCaption fires for each decoded caption frame.
	OnCaption func(caption.Message)
}

// PeerFactory builds a MediaPeer carrying the given local media handle.
type PeerFactory func(m media.Handle, hooks PeerHooks) (MediaPeer, error)

// NewPionFactory returns the production PeerFactory: pion PeerConnections
// configured with the STUN/TURN servers from cfg, local tracks attached,
// and a msgpack caption channel.
func NewPionFactory(cfg *config.Config) PeerFactory {
	return func(m media.Handle, hooks PeerHooks) (MediaPeer, error) {
		return newPionPeer(cfg, m, hooks)
	}
}

type pionPeer struct {
	pc    *webrtc.PeerConnection
	hooks PeerHooks

	mu        sync.Mutex
	captionDC *webrtc.DataChannel
	connected bool
	closed    bool
}

func newPionPeer(cfg *config.Config, m media.Handle, hooks PeerHooks) (*pionPeer, error) {
	iceServers := []webrtc.ICEServer{{URLs: cfg.STUNServers()}}
	if turn := cfg.TURNServers(); turn != nil {
		username, password := cfg.TURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &pionPeer{pc: pc, hooks: hooks}

	for _, t := range m.Tracks() {
		if _, err := pc.AddTrack(t); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || hooks.OnCandidate == nil {
			return
		}
		hooks.OnCandidate(c.ToJSON())
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			p.mu.Lock()
			already := p.connected
			p.connected = true
			p.mu.Unlock()
			if !already && hooks.OnConnected != nil {
				hooks.OnConnected()
			}
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
			if hooks.OnFailed != nil {
				hooks.OnFailed("media path " + state.String())
			}
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if hooks.OnTrack == nil {
			return
		}
		kind := track.KindAudio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = track.KindVideo
		}
		hooks.OnTrack(remote.ID(), kind)
	})

	// The offerer creates the caption channel below; the answerer receives
	// it here. Either way the open channel ends up in p.captionDC.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != caption.ChannelLabel {
			return
		}
		p.bindCaptionChannel(dc)
	})

	return p, nil
}

func (p *pionPeer) bindCaptionChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.captionDC = dc
	p.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		frame, err := caption.Decode(msg.Data)
		if err != nil {
			slog.Debug("dropping malformed caption frame", "error", err)
			return
		}
		if p.hooks.OnCaption != nil {
			p.hooks.OnCaption(frame)
		}
	})
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(caption.ChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create caption channel: %w", err)
	}
	p.bindCaptionChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *pionPeer) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *pionPeer) SetRemoteAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *pionPeer) AddCandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *pionPeer) SendCaption(m caption.Message) error {
	p.mu.Lock()
	dc := p.captionDC
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("caption channel not open")
	}
	data, err := caption.Encode(m)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func (p *pionPeer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.pc.Close()
}

package call

import (
	"github.com/babelmeet/babelmeet/internal/caption"
	"github.com/babelmeet/babelmeet/internal/track"
)

// Event is the tagged union published by the Manager. Consumers subscribe
// through Manager.Subscribe; every subscriber sees every event.
type Event interface {
	callEvent()
}

// IncomingCall: a call_request arrived and the session is now Ringing.
type IncomingCall struct {
	Peer string
}

// Answered: the remote peer accepted our call; negotiation is under way.
type Answered struct {
	Peer string
}

// StateChanged reports every lifecycle transition of the active session.
type StateChanged struct {
	Peer  string
	State State
}

// Ended: the session reached its terminal state. Reason explains why
// ("ended", "declined", "peer busy", "ring timeout", media failure text).
type Ended struct {
	Peer   string
	Reason string
}

// RemoteTrack: an inbound media track arrived and was classified.
type RemoteTrack struct {
	Desc track.Descriptor
}

// Caption: a caption frame arrived on the captions data channel.
type Caption struct {
	Msg caption.Message
}

func (IncomingCall) callEvent() {}
func (Answered) callEvent()     {}
func (StateChanged) callEvent() {}
func (Ended) callEvent()        {}
func (RemoteTrack) callEvent()  {}
func (Caption) callEvent()      {}

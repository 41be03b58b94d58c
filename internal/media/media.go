// Package media abstracts the local capture handle. Capture itself (device
// enumeration, encoding) belongs to external collaborators; the call layer
// only needs to attach tracks to a peer connection, toggle mute, and stop
// the handle when the owning session ends.
package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Handle is a local media source owned by exactly one call session. The
// session stops it on every path into the Ended state.
type Handle interface {
	// Tracks returns the local tracks to attach to a peer connection.
	Tracks() []webrtc.TrackLocal

	// SetMuted toggles the capture mute flag. Mute is a side channel: it
	// never touches call state.
	SetMuted(muted bool)
	Muted() bool

	// Stop releases the capture resources. Idempotent.
	Stop()
}

type handle struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
	muted  bool
	stop   func()
	done   bool
}

// New wraps a set of local tracks as a Handle. stop, if non-nil, runs once
// when the handle is stopped.
func New(stop func(), tracks ...webrtc.TrackLocal) Handle {
	return &handle{tracks: tracks, stop: stop}
}

// Microphone builds a handle with a single static audio track. The sample
// feed is supplied by the capture collaborator; here only the track shell
// is created.
func Microphone(trackName string) (Handle, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		trackName,
		"babelmeet-local",
	)
	if err != nil {
		return nil, err
	}
	return New(nil, audio), nil
}

func (h *handle) Tracks() []webrtc.TrackLocal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracks
}

func (h *handle) SetMuted(muted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.muted = muted
}

func (h *handle) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

func (h *handle) Stop() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	stop := h.stop
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
}

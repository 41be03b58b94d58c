package call

import "github.com/pion/webrtc/v4"

// CandidateBuffer holds ICE candidates that arrive before the remote
// session description is known. Candidates are intrinsically scoped to a
// negotiation round, so they cannot be applied until that round's remote
// description is set; arrival order is preserved.
//
// Pure bookkeeping: it never drops a candidate. Candidates buffered on a
// session that ends before the remote description arrives are discarded
// with the session, which is the expected outcome of that race.
type CandidateBuffer struct {
	pending []webrtc.ICECandidateInit
}

// Offer appends a candidate in arrival order.
func (b *CandidateBuffer) Offer(c webrtc.ICECandidateInit) {
	b.pending = append(b.pending, c)
}

// Drain returns every buffered candidate in original arrival order and
// clears the buffer.
func (b *CandidateBuffer) Drain() []webrtc.ICECandidateInit {
	pending := b.pending
	b.pending = nil
	return pending
}

// Len reports the number of buffered candidates.
func (b *CandidateBuffer) Len() int {
	return len(b.pending)
}

package room

import (
	"time"

	"github.com/babelmeet/babelmeet/internal/signaling"
)

// Participant is one room member, owned by its Room.
type Participant struct {
	ID        string
	Name      string
	Host      bool
	Language  string
	Connected bool
	JoinedAt  time.Time
}

// Room is the local copy of a shared room: identity, language-pair
// metadata, and the membership list ordered by join time. It starts from
// the server's snapshot and is kept consistent by membership deltas, which
// the transport delivers in FIFO order relative to the snapshot.
type Room struct {
	ID           string
	Name         string
	HostID       string
	SourceLang   string
	TargetLang   string
	Participants []Participant
}

// ShareLink derives the shareable URL for this room. Pure function of the
// room ID and the webapp origin.
func (r *Room) ShareLink(origin string) string {
	return origin + "/room/" + r.ID
}

// Host returns the host participant, or nil if the host already left.
func (r *Room) Host() *Participant {
	for i := range r.Participants {
		if r.Participants[i].ID == r.HostID {
			return &r.Participants[i]
		}
	}
	return nil
}

func roomFromInfo(info signaling.RoomInfo) *Room {
	r := &Room{
		ID:         info.ID,
		Name:       info.Settings.Name,
		HostID:     info.HostID,
		SourceLang: info.Settings.SourceLang,
		TargetLang: info.Settings.TargetLang,
	}
	for _, p := range info.Participants {
		r.Participants = append(r.Participants, participantFromInfo(p))
	}
	return r
}

func participantFromInfo(info signaling.ParticipantInfo) Participant {
	return Participant{
		ID:        info.ID,
		Name:      info.Name,
		Host:      info.Host,
		Language:  info.Language,
		Connected: info.Connected,
		JoinedAt:  info.JoinedAt,
	}
}

// clone returns a deep copy so callers can read a snapshot without racing
// the registry's updates.
func (r *Room) clone() *Room {
	if r == nil {
		return nil
	}
	copied := *r
	copied.Participants = append([]Participant(nil), r.Participants...)
	return &copied
}

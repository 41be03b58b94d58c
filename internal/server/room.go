package server

import (
	"github.com/babelmeet/babelmeet/internal/signaling"
)

// maxParticipants caps room membership.
const maxParticipants = 8

// Room is the server-side record of a shared room: the host plus every
// joined client, ordered by join time.
type Room struct {
	ID       string
	Settings signaling.RoomSettings
	HostID   string

	// participants in join order; the host is always first.
	participants []*Client
}

func (r *Room) isFull() bool {
	return len(r.participants) >= maxParticipants
}

func (r *Room) hasName(name string) bool {
	for _, c := range r.participants {
		if c.DisplayName == name {
			return true
		}
	}
	return false
}

func (r *Room) add(c *Client) {
	r.participants = append(r.participants, c)
}

func (r *Room) remove(c *Client) {
	for i, existing := range r.participants {
		if existing == c {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return
		}
	}
}

// others returns every participant except the given client.
func (r *Room) others(c *Client) []*Client {
	var rest []*Client
	for _, existing := range r.participants {
		if existing != c {
			rest = append(rest, existing)
		}
	}
	return rest
}

// snapshot builds the full-membership RoomInfo sent on create and join
// echoes, so a joining client's local copy starts consistent.
func (r *Room) snapshot() signaling.RoomInfo {
	info := signaling.RoomInfo{
		ID:       r.ID,
		Settings: r.Settings,
		HostID:   r.HostID,
	}
	for _, c := range r.participants {
		info.Participants = append(info.Participants, c.participantInfo())
	}
	return info
}

// Package caption defines the payload format of the "captions" data
// channel. Captions are produced by the remote side's transcription
// pipeline; this client only decodes and displays them.
package caption

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ChannelLabel is the WebRTC data channel label captions travel on.
const ChannelLabel = "captions"

// Message is one caption fragment. Final marks the end of an utterance;
// non-final fragments replace the previous fragment from the same speaker.
type Message struct {
	Speaker  string    `msgpack:"speaker"`
	Language string    `msgpack:"language"`
	Text     string    `msgpack:"text"`
	Final    bool      `msgpack:"final"`
	SentAt   time.Time `msgpack:"sent_at"`
}

// Encode serializes a caption for the data channel.
func Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses a caption frame. Malformed frames return an error; callers
// drop them rather than tearing down the channel.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

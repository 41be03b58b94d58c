package caption

import (
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	in := Message{
		Speaker:  "alice",
		Language: "es",
		Text:     "hola a todos",
		Final:    true,
		SentAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Speaker != in.Speaker || out.Language != in.Language ||
		out.Text != in.Text || out.Final != in.Final || !out.SentAt.Equal(in.SentAt) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("\x00\xff not msgpack")); err == nil {
		t.Fatal("Decode accepted garbage")
	}
}

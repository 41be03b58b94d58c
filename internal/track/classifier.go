// Package track classifies inbound media tracks by their published name.
//
// Derived (language-converted) tracks are identified by a naming
// convention: "translated_es", "translated-fr", "TRANSLATED_DE" and so on.
// Everything else is treated as an original track. This is a pragmatic
// interim scheme; a structured language tag attached at publish time
// should replace it if the publishing side ever grows one.
package track

import (
	"regexp"
	"strings"
)

// LanguageUnknown is the language tag assigned to tracks whose name does
// not match the derivation convention.
const LanguageUnknown = "unknown"

// Kind distinguishes audio from video tracks.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Descriptor is the classification result for one inbound track. It is
// purely descriptive; ownership of the underlying media stays with the
// transport.
type Descriptor struct {
	ParticipantID string
	Kind          Kind
	Language      string
	Derived       bool
}

// derivedName matches "translated" followed by an optional separator and a
// 2-letter language code, case-insensitively.
var derivedName = regexp.MustCompile(`^(?i)translated[_-]?([a-z]{2})$`)

// Classify inspects a track name and reports whether it is a derived
// per-language track. A malformed name degrades to a non-derived result
// rather than an error: playing an unrecognized track beats dropping it.
func Classify(trackName string) (language string, derived bool) {
	m := derivedName.FindStringSubmatch(trackName)
	if m == nil {
		return LanguageUnknown, false
	}
	return strings.ToLower(m[1]), true
}

// Describe builds a full Descriptor for a track published by the given
// participant.
func Describe(participantID string, kind Kind, trackName string) Descriptor {
	language, derived := Classify(trackName)
	return Descriptor{
		ParticipantID: participantID,
		Kind:          kind,
		Language:      language,
		Derived:       derived,
	}
}

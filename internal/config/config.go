package config

import (
	"fmt"
	"os"
)

// Default configuration values (production)
const (
	DefaultOrigin = "https://meet.babelmeet.app"
	DefaultServer = "meet.babelmeet.app"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
	DefaultTURN   = "" // optional, empty by default
)

// Config holds application configuration
type Config struct {
	// Server is the coordination server host.
	Server string

	// Origin is the webapp origin used for shareable room links.
	Origin string

	// WebSocketURL is constructed from the server host.
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// DisplayName is the name announced to rooms and call peers.
	DisplayName string

	// Language is the caller's language tag (e.g. "en").
	Language string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server      string
	Origin      string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	DisplayName string
	Language    string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstOf(opts.Server, os.Getenv("BABELMEET_SERVER"), DefaultServer)
	origin := firstOf(opts.Origin, os.Getenv("BABELMEET_ORIGIN"), DefaultOrigin)
	stun := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turn := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), "")
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), "")
	name := firstOf(opts.DisplayName, os.Getenv("BABELMEET_NAME"), "")
	lang := firstOf(opts.Language, os.Getenv("BABELMEET_LANG"), "en")

	if turn != "" && (turnUser == "" || turnPass == "") {
		return nil, fmt.Errorf("TURN server %q configured without credentials", turn)
	}

	return &Config{
		Server:       server,
		Origin:       origin,
		WebSocketURL: fmt.Sprintf("wss://%s/ws", server),
		STUNServer:   stun,
		TURNServer:   turn,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
		DisplayName:  name,
		Language:     lang,
	}, nil
}

// RoomLink returns the shareable webapp URL for a room ID.
func (c *Config) RoomLink(roomID string) string {
	return c.Origin + "/room/" + roomID
}

// STUNServers returns STUN server URLs as strings
func (c *Config) STUNServers() []string {
	return []string{c.STUNServer}
}

// TURNServers returns TURN server URLs if configured
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// TURNCredentials returns the TURN username and password.
func (c *Config) TURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

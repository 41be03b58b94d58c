package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BABELMEET_SERVER", "")
	t.Setenv("BABELMEET_LANG", "")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != DefaultServer {
		t.Errorf("Server: got %q, want %q", cfg.Server, DefaultServer)
	}
	if cfg.WebSocketURL != "wss://"+DefaultServer+"/ws" {
		t.Errorf("WebSocketURL: got %q", cfg.WebSocketURL)
	}
	if cfg.Language != "en" {
		t.Errorf("Language: got %q, want en", cfg.Language)
	}
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("BABELMEET_SERVER", "env.example.com")
	t.Setenv("BABELMEET_NAME", "EnvName")

	cfg, err := Load(Options{Server: "flag.example.com"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "flag.example.com" {
		t.Errorf("Server: got %q, want flag.example.com", cfg.Server)
	}
	// Unset flags still fall through to the environment.
	if cfg.DisplayName != "EnvName" {
		t.Errorf("DisplayName: got %q, want EnvName", cfg.DisplayName)
	}
}

func TestTURNRequiresCredentials(t *testing.T) {
	if _, err := Load(Options{TURNServer: "turn:turn.example.com"}); err == nil {
		t.Fatal("Load accepted TURN server without credentials")
	}

	cfg, err := Load(Options{TURNServer: "turn:turn.example.com", TURNUser: "u", TURNPass: "p"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	urls := cfg.TURNServers()
	if len(urls) != 2 {
		t.Fatalf("TURNServers: got %v", urls)
	}
	user, pass := cfg.TURNCredentials()
	if user != "u" || pass != "p" {
		t.Errorf("TURNCredentials: got (%q, %q)", user, pass)
	}
}

func TestRoomLink(t *testing.T) {
	cfg, err := Load(Options{Origin: "https://meet.example.com"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.RoomLink("room-1"); got != "https://meet.example.com/room/room-1" {
		t.Errorf("RoomLink: got %q", got)
	}
}

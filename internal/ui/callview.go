package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/babelmeet/babelmeet/internal/call"
	"github.com/babelmeet/babelmeet/internal/caption"
)

const captionWindow = 8

// CallController is the slice of the client the call view drives.
type CallController interface {
	AnswerCall() error
	DeclineCall() error
	EndCall() error
	ToggleMute() (bool, error)
}

// CallView is a live terminal view of one call: lifecycle state, mute
// state, and a rolling caption transcript.
type CallView struct {
	controller CallController
	events     <-chan call.Event

	spinner  spinner.Model
	state    call.State
	peer     string
	muted    bool
	started  time.Time
	endured  time.Duration
	reason   string
	captions []caption.Message
	total    int
	quitting bool
}

// NewCallView builds the view. The caller owns the event subscription and
// cancels it after the program exits.
func NewCallView(controller CallController, events <-chan call.Event, peer string, state call.State) *CallView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &CallView{
		controller: controller,
		events:     events,
		spinner:    s,
		state:      state,
		peer:       peer,
		started:    time.Now(),
	}
}

// Summary reports the stats of the finished call.
func (m *CallView) Summary() CallSummary {
	return CallSummary{
		Peer:     m.peer,
		Duration: m.endured,
		Reason:   m.reason,
		Captions: m.total,
	}
}

func (m *CallView) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *CallView) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return call.Ended{Peer: m.peer, Reason: "event stream closed"}
		}
		return ev
	}
}

func (m *CallView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "a":
			if m.state == call.StateRinging {
				m.controller.AnswerCall()
			}
		case "d":
			if m.state == call.StateRinging {
				m.controller.DeclineCall()
			}
		case "m":
			if muted, err := m.controller.ToggleMute(); err == nil {
				m.muted = muted
			}
		case "q", "esc", "ctrl+c":
			m.controller.EndCall()
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case call.StateChanged:
		m.state = msg.State
		if msg.State == call.StateActive {
			m.started = time.Now()
		}
		return m, m.listen()

	case call.Answered:
		return m, m.listen()

	case call.IncomingCall:
		m.peer = msg.Peer
		return m, m.listen()

	case call.Caption:
		m.pushCaption(msg.Msg)
		return m, m.listen()

	case call.RemoteTrack:
		// Track routing happens below the UI; nothing to show yet.
		return m, m.listen()

	case call.Ended:
		m.endured = time.Since(m.started)
		m.reason = msg.Reason
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// pushCaption appends a fragment, replacing the previous interim fragment
// from the same speaker.
func (m *CallView) pushCaption(c caption.Message) {
	m.total++
	if n := len(m.captions); n > 0 {
		last := m.captions[n-1]
		if !last.Final && last.Speaker == c.Speaker {
			m.captions[n-1] = c
			return
		}
	}
	m.captions = append(m.captions, c)
	if len(m.captions) > captionWindow {
		m.captions = m.captions[len(m.captions)-captionWindow:]
	}
}

func (m *CallView) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n%s Call with %s\n\n", IconCall, BoldStyle.Render(m.peer)))

	switch m.state {
	case call.StateCalling:
		b.WriteString(fmt.Sprintf("%s Calling %s\n", m.spinner.View(), MutedStyle.Render("(q to cancel)")))
	case call.StateRinging:
		b.WriteString(fmt.Sprintf("%s Incoming call %s\n", m.spinner.View(), MutedStyle.Render("(a to answer, d to decline)")))
	case call.StateConnecting:
		b.WriteString(fmt.Sprintf("%s Connecting media\n", m.spinner.View()))
	case call.StateActive:
		mic := IconMic
		if m.muted {
			mic = IconMuted + " muted"
		}
		b.WriteString(fmt.Sprintf("%s %s  %s  %s\n",
			StatusStyle.Render("LIVE"),
			mic,
			MutedStyle.Render(time.Since(m.started).Round(time.Second).String()),
			MutedStyle.Render("(m to mute, q to hang up)")))
	default:
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.state))
	}

	if len(m.captions) > 0 {
		b.WriteString("\n" + SubtitleStyle.Render(IconCaption+" Captions") + "\n")
		for _, c := range m.captions {
			line := fmt.Sprintf("%s %s",
				CaptionSpeakerStyle.Render(c.Speaker+":"),
				CaptionStyle.Render(c.Text))
			if !c.Final {
				line = fmt.Sprintf("%s %s",
					CaptionSpeakerStyle.Render(c.Speaker+":"),
					CaptionInterimStyle.Render(c.Text+" …"))
			}
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n")
	return b.String()
}

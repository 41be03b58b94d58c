package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/babelmeet/babelmeet/internal/room"
)

// ParticipantTableView renders the membership of a room.
func ParticipantTableView(r *room.Room) string {
	if r == nil || len(r.Participants) == 0 {
		return MutedStyle.Render("No participants")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgHiCyan, text.Bold}
	t.AppendHeader(table.Row{"#", "Name", "Language", "Role", "Joined"})

	for i, p := range r.Participants {
		role := "guest"
		if p.Host {
			role = IconHost + " host"
		}
		joined := "-"
		if !p.JoinedAt.IsZero() {
			joined = p.JoinedAt.Local().Format(time.Kitchen)
		}
		t.AppendRow(table.Row{i + 1, p.Name, p.Language, role, joined})
	}

	return t.Render()
}

// RoomInfoView renders the box shown to a host after creating a room.
func RoomInfoView(roomID, shareLink string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconGlobe, MutedStyle.Render(shareLink),
	)
	return SuccessBoxStyle.Render(content)
}

// CallSummary holds the stats shown when a call ends.
type CallSummary struct {
	Peer     string
	Duration time.Duration
	Reason   string
	Captions int
}

// CallSummaryView renders the end-of-call stats table.
func CallSummaryView(summary CallSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Color.Row = text.Colors{text.FgWhite}

	t.AppendRows([]table.Row{
		{"Peer", summary.Peer},
		{"Duration", summary.Duration.Round(time.Second).String()},
		{"Ended", summary.Reason},
		{"Captions", fmt.Sprintf("%d", summary.Captions)},
	})

	title := TitleStyle.Render(IconCall + " Call Summary")
	return lipgloss.JoinVertical(lipgloss.Left, title, t.Render())
}

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/overlay"
)

var (
	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230"))

	verdictColors = map[string]lipgloss.Color{
		models.VerdictBuy:     lipgloss.Color("28"),
		models.VerdictSkip:    lipgloss.Color("160"),
		models.VerdictCaution: lipgloss.Color("172"),
	}

	summaryStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Width(72)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160")).
			Bold(true)
)

// renderBadge prints the overlay state the way the in-page badge shows it.
func renderBadge(s overlay.Snapshot, signedIn bool) string {
	if s.State == overlay.StateError {
		return errorStyle.Render("✗ " + s.Error)
	}
	if s.State != overlay.StateResult || s.Verdict == nil {
		return mutedStyle.Render("No verdict yet")
	}

	v := s.Verdict
	color, ok := verdictColors[v.Verdict]
	if !ok {
		color = lipgloss.Color("240")
	}

	var b strings.Builder
	b.WriteString(badgeStyle.Background(color).Render(v.Verdict))
	fmt.Fprintf(&b, " Trust %.0f · Confidence %.0f\n", v.TrustScore, v.ConfidenceScore)
	if v.Summary != "" {
		b.WriteString(summaryStyle.Render(v.Summary))
		b.WriteString("\n")
	}

	meta := "Updated " + s.LastUpdatedAt
	if v.IsAnonymous || !signedIn {
		meta += " · not saved to your history"
	}
	b.WriteString(mutedStyle.Render(meta))
	return b.String()
}

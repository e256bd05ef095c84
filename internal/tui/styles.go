package tui

import (
	"compliance-dashboard/internal/presenter"

	"github.com/charmbracelet/lipgloss"
)

// 调色板与 Web 端一致
var (
	colorGreen  = lipgloss.Color("#16a34a")
	colorYellow = lipgloss.Color("#ca8a04")
	colorRed    = lipgloss.Color("#dc2626")
	colorMuted  = lipgloss.Color("#6b7280")
	colorAccent = lipgloss.Color("#4f46e5")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	alertStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(colorRed).Padding(0, 1)
	focusStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1)
	helpStyle    = mutedStyle
)

func colorOf(c presenter.Color) lipgloss.Color {
	switch c {
	case presenter.Green:
		return colorGreen
	case presenter.Yellow:
		return colorYellow
	default:
		return colorRed
	}
}

// complianceText 按合规等级着色
func complianceText(text string, c presenter.Color) string {
	return lipgloss.NewStyle().Bold(true).Foreground(colorOf(c)).Render(text)
}

// badge 告警徽章
func badge(b presenter.Badge) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(colorOf(b.Color)).Padding(0, 1).Render(b.Label)
}

func attentionMarker() string {
	return lipgloss.NewStyle().Bold(true).Foreground(colorRed).Render("⚠ Needs Attention")
}

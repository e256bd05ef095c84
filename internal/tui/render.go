package tui

import (
	"fmt"
	"strings"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/presenter"
	"compliance-dashboard/internal/view"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Device Compliance Dashboard"))
	if m.sess != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s (%s)", m.sess.Name, m.sess.Role)))
	}
	b.WriteString("\n\n")

	switch m.screen {
	case screenLogin:
		b.WriteString(m.renderLogin())
	case screenPatient:
		b.WriteString(renderPatient(m.patient.Snapshot()))
	case screenDoctor:
		b.WriteString(renderDoctor(m.doctor.Snapshot()))
	}
	b.WriteString("\n\n")

	if m.alert != "" {
		b.WriteString(alertStyle.Render("✗ " + m.alert))
		b.WriteString(mutedStyle.Render("  (enter to dismiss)"))
		b.WriteString("\n")
	} else if m.busy != "" {
		b.WriteString(focusStyle.Render(m.busy))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(mutedStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(m.help()))
	return b.String()
}

func (m *Model) help() string {
	switch m.screen {
	case screenPatient:
		return "p pair • c cancel pairing • r refresh • l logout • q quit"
	case screenDoctor:
		return "r refresh • e export xlsx • l logout • q quit"
	default:
		return "tab next field • ←/→ switch role • enter login • esc quit"
	}
}

func (m *Model) renderLogin() string {
	roles := []domain.Role{domain.RolePatient, domain.RoleDoctor}
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		label := "( ) " + string(r)
		if r == m.role {
			label = "(•) " + string(r)
		}
		parts = append(parts, label)
	}
	roleLine := strings.Join(parts, "   ")
	if m.focus == fieldRole {
		roleLine = focusStyle.Render(roleLine)
	}

	idLabel := "Patient ID"
	if m.role == domain.RoleDoctor {
		idLabel = "Doctor ID"
	}
	rows := []string{
		label("I am a", m.focus == fieldRole) + roleLine,
		label(idLabel, m.focus == fieldID) + m.id.View(),
		label("Name", m.focus == fieldName) + m.name.View(),
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func label(text string, focused bool) string {
	s := fmt.Sprintf("%-12s", text)
	if focused {
		return focusStyle.Render(s)
	}
	return s
}

func renderPatient(s view.PatientSnapshot) string {
	return strings.Join([]string{
		renderComplianceCard(s),
		renderPairing(s),
		renderUsage(s),
		renderChart(s.UsageChart),
		renderChart(s.DayNightChart),
	}, "\n\n")
}

func renderComplianceCard(s view.PatientSnapshot) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Compliance"))
	b.WriteString("\n")
	c := s.Compliance
	if c == nil {
		b.WriteString(mutedStyle.Render("Compliance data unavailable"))
		return panelStyle.Render(b.String())
	}
	b.WriteString(complianceText(c.Display, c.Color))
	b.WriteString("  " + string(c.Class))
	if c.NeedsAttention {
		b.WriteString("  " + attentionMarker())
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Avg daily: %.1fh  Sessions: %d  Active days: %d", c.AverageDailyHours, c.TotalSessions, s.ActiveDays)
	if c.Trend != "" {
		b.WriteString("  Trend: " + c.Trend)
	}
	if c.LastSession != nil && !c.LastSession.IsZero() {
		b.WriteString("\nLast session: " + c.LastSession.Format("2006-01-02 15:04"))
	}
	if s.Reminders {
		b.WriteString("\n" + mutedStyle.Render("Daily reminder scheduled"))
	}
	return panelStyle.Render(b.String())
}

func renderPairing(s view.PatientSnapshot) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Device"))
	b.WriteString("\n")
	switch s.Pairing.State {
	case domain.PairingPaired:
		name := ""
		if s.Pairing.Device != nil {
			name = s.Pairing.Device.Name
		}
		b.WriteString(complianceText("● Connected", presenter.Green) + " " + name)
	case domain.PairingPairing:
		b.WriteString(complianceText("● Pairing...", presenter.Yellow))
	default:
		b.WriteString(mutedStyle.Render("○ No device paired (press p)"))
	}
	if s.Pairing.Message != "" {
		b.WriteString("\n" + mutedStyle.Render(s.Pairing.Message))
	}
	if s.HasDevices && len(s.Devices) > 0 {
		b.WriteString("\n" + mutedStyle.Render(fmt.Sprintf("Registered devices: %d", len(s.Devices))))
	}
	for _, t := range s.RecentSamples {
		fmt.Fprintf(&b, "\n  %s  %3d min  %s", t.Timestamp.Local().Format("15:04:05"), t.UsageDuration, t.TimeOfDay)
	}
	return b.String()
}

func renderUsage(s view.PatientSnapshot) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(fmt.Sprintf("Usage (last %d days)", view.UsageWindowDays)))
	b.WriteString("\n")
	if !s.HasUsage {
		b.WriteString(mutedStyle.Render("Usage data unavailable"))
		return b.String()
	}
	if len(s.Usage) == 0 {
		b.WriteString(mutedStyle.Render("No sessions recorded"))
		return b.String()
	}
	for i, u := range s.Usage {
		duration := "-"
		if u.DurationMinutes != nil {
			duration = presenter.FormatHours(float64(*u.DurationMinutes))
		}
		fmt.Fprintf(&b, "%s  %-6s %s", u.StartTime.Format("2006-01-02 15:04"), duration, u.TimeOfDay)
		if i < len(s.Usage)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderDoctor(s view.DoctorSnapshot) string {
	var b strings.Builder

	if s.HasDashboard {
		stats := []string{
			fmt.Sprintf("Patients: %d", s.TotalPatients),
			fmt.Sprintf("Active today: %d", s.ActiveToday),
			"Avg compliance: " + complianceText(presenter.FormatPercent(s.AverageCompliance), presenter.ComplianceColor(s.AverageCompliance)),
		}
		if s.NeedsAttention > 0 {
			stats = append(stats, complianceText(fmt.Sprintf("Needs attention: %d", s.NeedsAttention), presenter.Red))
		}
		b.WriteString(panelStyle.Render(strings.Join(stats, "   ")))
	} else {
		b.WriteString(mutedStyle.Render("Dashboard summary unavailable"))
	}
	b.WriteString("\n\n")

	b.WriteString(headingStyle.Render("Patients"))
	b.WriteString("\n")
	switch {
	case !s.HasRoster:
		b.WriteString(mutedStyle.Render("Patient list unavailable"))
	case len(s.Patients) == 0:
		b.WriteString(mutedStyle.Render("No patients assigned"))
	default:
		b.WriteString(renderRoster(s.Patients))
	}

	if len(s.Alerts) > 0 {
		b.WriteString("\n\n")
		b.WriteString(headingStyle.Render("Alerts"))
		for _, a := range s.Alerts {
			fmt.Fprintf(&b, "\n%s %s: %s", badge(a.Badge), a.PatientName, a.Message)
		}
	}
	return b.String()
}

func renderRoster(rows []view.PatientRow) string {
	nameWidth := len("Patient")
	for _, r := range rows {
		nameWidth = max(nameWidth, lipgloss.Width(r.PatientName))
	}
	lines := []string{mutedStyle.Render(fmt.Sprintf("%-*s  %-8s  %-9s  %s", nameWidth, "Patient", "Comp.", "Avg/day", "Trend"))}
	for _, r := range rows {
		// 先补齐宽度再着色，ANSI 序列会打乱 %-8s
		pct := complianceText(fmt.Sprintf("%-8s", r.Display), r.Color)
		line := fmt.Sprintf("%-*s  %s  %-9s  %s", nameWidth, r.PatientName, pct, fmt.Sprintf("%.1fh", r.AverageDailyHours), r.Trend)
		if r.NeedsAttention {
			line += "  " + attentionMarker()
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

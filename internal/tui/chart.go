package tui

import (
	"fmt"
	"strings"

	"compliance-dashboard/internal/chart"
)

const barWidth = 30

// renderChart 把图表配置画成文本条形图；饼图按占比画
func renderChart(cfg chart.Config) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(cfg.Options.Plugins.Title.Text))
	b.WriteString("\n")
	if cfg.Placeholder || len(cfg.Data.Datasets) == 0 {
		msg := cfg.Message
		if msg == "" {
			msg = chart.PlaceholderMessage
		}
		b.WriteString(mutedStyle.Render(msg))
		return b.String()
	}

	values := cfg.Data.Datasets[0].Data
	labelWidth := 0
	for _, l := range cfg.Data.Labels {
		labelWidth = max(labelWidth, len(l))
	}

	var total, peak float64
	for _, v := range values {
		total += v
		peak = max(peak, v)
	}

	for i, label := range cfg.Data.Labels {
		if i >= len(values) {
			break
		}
		v := values[i]
		scale := peak
		if cfg.Type == chart.TypePie {
			scale = total
		}
		n := 0
		if scale > 0 {
			n = int(v / scale * barWidth)
		}
		line := fmt.Sprintf("%-*s %s %.1fh", labelWidth, label, strings.Repeat("█", n), v)
		if cfg.Type == chart.TypePie && total > 0 {
			line += fmt.Sprintf(" (%.0f%%)", v/total*100)
		}
		b.WriteString(line)
		if i < len(cfg.Data.Labels)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

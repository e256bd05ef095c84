package presenter

import (
	"fmt"
	"math"

	"compliance-dashboard/internal/domain"
)

// 合规率分级阈值（百分比）
const (
	GoodThreshold    = 80.0
	WarningThreshold = 60.0
)

// Class 合规率样式类
type Class string

const (
	ClassGood      Class = "good"
	ClassWarning   Class = "warning"
	ClassAttention Class = "attention"
)

// Color 展示颜色
type Color string

const (
	Green  Color = "green"
	Yellow Color = "yellow"
	Red    Color = "red"
)

// ComplianceClass ≥80 good，≥60 warning，其余 attention
func ComplianceClass(pct float64) Class {
	switch {
	case pct >= GoodThreshold:
		return ClassGood
	case pct >= WarningThreshold:
		return ClassWarning
	default:
		return ClassAttention
	}
}

// ComplianceColor 与 ComplianceClass 一一对应
func ComplianceColor(pct float64) Color {
	switch ComplianceClass(pct) {
	case ClassGood:
		return Green
	case ClassWarning:
		return Yellow
	default:
		return Red
	}
}

// NeedsAttention 当且仅当 < 60
func NeedsAttention(pct float64) bool {
	return pct < WarningThreshold
}

// Badge 告警徽章样式
type Badge struct {
	Severity domain.Severity `json:"severity"`
	Label    string          `json:"label"`
	Color    Color           `json:"color"`
}

// SeverityBadge 未知或缺省级别按 medium 展示
func SeverityBadge(sev domain.Severity) Badge {
	switch sev {
	case domain.SeverityHigh:
		return Badge{Severity: domain.SeverityHigh, Label: "HIGH", Color: Red}
	case domain.SeverityLow:
		return Badge{Severity: domain.SeverityLow, Label: "LOW", Color: Green}
	default:
		return Badge{Severity: domain.SeverityMedium, Label: "MEDIUM", Color: Yellow}
	}
}

// FormatPercent 四舍五入到一位小数
func FormatPercent(pct float64) string {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatHours 分钟转小时展示
func FormatHours(minutes float64) string {
	return fmt.Sprintf("%.1fh", minutes/60)
}

// TrendLabel 例如 "↑ 12.5%"；没有趋势数据返回空串
func TrendLabel(trend *domain.UsageTrend) string {
	if trend == nil {
		return ""
	}
	switch trend.Direction {
	case "increasing":
		return fmt.Sprintf("↑ %.1f%%", trend.Percentage)
	case "decreasing":
		return fmt.Sprintf("↓ %.1f%%", trend.Percentage)
	default:
		return fmt.Sprintf("→ %.1f%%", trend.Percentage)
	}
}

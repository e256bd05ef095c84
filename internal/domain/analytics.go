package domain

// TimeSeriesPoint 每日使用量
type TimeSeriesPoint struct {
	Date         string  `json:"date"`
	UsageMinutes int     `json:"usage_minutes"`
	UsageHours   float64 `json:"usage_hours"`
}

// DayNightDistribution 日间/夜间使用时长（分钟）
type DayNightDistribution struct {
	Day   float64 `json:"day"`
	Night float64 `json:"night"`
}

// Analytics GET /patients/{id}/analytics
type Analytics struct {
	TimeSeries           []TimeSeriesPoint     `json:"time_series"`
	DayNightDistribution *DayNightDistribution `json:"day_night_distribution,omitempty"`
	TotalDays            int                   `json:"total_days"`
	ActiveDays           int                   `json:"active_days"`
	AverageDailyMinutes  float64               `json:"average_daily_minutes"`
	AverageDailyHours    float64               `json:"average_daily_hours"`
}

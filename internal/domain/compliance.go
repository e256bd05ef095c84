package domain

// UsageSession 一次完整的设备使用区间（后端所有）
type UsageSession struct {
	ID              string     `json:"id"`
	PatientID       string     `json:"patient_id"`
	DeviceID        string     `json:"device_id"`
	StartTime       Timestamp  `json:"start_time"`
	EndTime         *Timestamp `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	TimeOfDay       TimeOfDay  `json:"time_of_day"`
	ComplianceScore *float64   `json:"compliance_score,omitempty"`
	CreatedAt       Timestamp  `json:"created_at"`
}

// UsageTrend 最近 7 天与前 7 天对比
type UsageTrend struct {
	Direction  string  `json:"direction"` // increasing / decreasing / stable
	Percentage float64 `json:"percentage"`
}

// ComplianceSummary GET /patients/{id}/compliance
// 也是 GET /doctors/{id}/patients 的行结构
type ComplianceSummary struct {
	PatientID            string      `json:"patient_id"`
	PatientName          string      `json:"patient_name"`
	TotalSessions        int         `json:"total_sessions"`
	TotalDurationMinutes int         `json:"total_duration_minutes"`
	AverageDailyUsage    float64     `json:"average_daily_usage"`
	AverageDailyHours    float64     `json:"average_daily_hours"`
	CompliancePercentage float64     `json:"compliance_percentage"`
	LastSession          *Timestamp  `json:"last_session,omitempty"`
	DeviceConnected      bool        `json:"device_connected"`
	UsageTrend           *UsageTrend `json:"usage_trend,omitempty"`
}

// PatientComplianceRow 医生视图中的患者行
type PatientComplianceRow = ComplianceSummary

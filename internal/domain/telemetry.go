package domain

import "time"

// TimeOfDay 日间/夜间标记
type TimeOfDay string

const (
	Day   TimeOfDay = "day"
	Night TimeOfDay = "night"
)

// Valid 只允许 day / night 两个值
func (t TimeOfDay) Valid() bool {
	return t == Day || t == Night
}

// TelemetrySample 一条遥测样本（POST /bluetooth/data）
type TelemetrySample struct {
	ID            string    `json:"-"`
	PatientID     string    `json:"patient_id"`
	DeviceID      string    `json:"device_id"`
	UsageDuration int       `json:"usage_duration"` // 分钟
	TimeOfDay     TimeOfDay `json:"time_of_day"`
	Timestamp     time.Time `json:"timestamp"`
}

// TelemetryAck POST /bluetooth/data 响应
type TelemetryAck struct {
	Success bool          `json:"success"`
	Session *UsageSession `json:"session,omitempty"`
}

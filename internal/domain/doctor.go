package domain

// Severity 告警级别
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Alert 后端标记需要关注的患者
type Alert struct {
	PatientID   string   `json:"patient_id"`
	PatientName string   `json:"patient_name"`
	Type        string   `json:"type,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	Message     string   `json:"message"`
}

// DoctorDashboard GET /doctors/{id}/dashboard
type DoctorDashboard struct {
	TotalPatients     int     `json:"total_patients"`
	ActiveToday       int     `json:"active_today"`
	AverageCompliance float64 `json:"average_compliance"`
	Alerts            []Alert `json:"alerts"`
}

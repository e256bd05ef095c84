package domain

// Device 配对得到的设备句柄（名称与平台分配的标识）
type Device struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// DeviceRecord 后端保存的设备记录
type DeviceRecord struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patient_id"`
	DeviceName    string     `json:"device_name"`
	DeviceID      string     `json:"device_id"`
	IsConnected   bool       `json:"is_connected"`
	LastConnected *Timestamp `json:"last_connected,omitempty"`
	CreatedAt     Timestamp  `json:"created_at"`
}

// PairingState 配对状态机
type PairingState string

const (
	PairingIdle    PairingState = "idle"
	PairingPairing PairingState = "pairing"
	PairingPaired  PairingState = "paired"
)

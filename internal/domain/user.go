package domain

// Role 登录角色
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// User 后端返回的用户身份
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserType  Role      `json:"user_type"`
	PatientID *string   `json:"patient_id,omitempty"`
	DoctorID  *string   `json:"doctor_id,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
}

// LoginRequest POST /auth/login 请求体
// patient_id / doctor_id 只会出现其中一个（由 user_type 决定）
type LoginRequest struct {
	Name      string  `json:"name"`
	UserType  Role    `json:"user_type"`
	PatientID *string `json:"patient_id,omitempty"`
	DoctorID  *string `json:"doctor_id,omitempty"`
}

// LoginResponse POST /auth/login 响应
type LoginResponse struct {
	Success bool   `json:"success"`
	User    *User  `json:"user"`
	Token   string `json:"token,omitempty"`
}

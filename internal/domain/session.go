package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session 当前登录会话（只保存在内存或会话存储中，不做业务持久化）
type Session struct {
	Token        string    `json:"token"`         // 本地会话令牌（cookie / 会话存储的 key）
	BackendToken string    `json:"backend_token"` // 后端登录返回的令牌
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	RoleID       string    `json:"role_id"` // patient_id 或 doctor_id（登录时输入）
	UserID       string    `json:"user_id"` // 后端分配的用户 ID
	CreatedAt    time.Time `json:"created_at"`
}

// SubjectID 后端接口路径中使用的 ID
// 后端按用户 ID 查询 /patients/{id}/...，未返回用户 ID 时退回角色 ID
func (s *Session) SubjectID() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.RoleID
}

// NewSession 根据登录响应构造会话，本地令牌随机生成
func NewSession(backendToken string, req LoginRequest, user *User) *Session {
	s := &Session{
		Token:        uuid.NewString(),
		BackendToken: backendToken,
		Name:         req.Name,
		Role:         req.UserType,
		CreatedAt:    time.Now(),
	}
	switch req.UserType {
	case RolePatient:
		if req.PatientID != nil {
			s.RoleID = *req.PatientID
		}
	case RoleDoctor:
		if req.DoctorID != nil {
			s.RoleID = *req.DoctorID
		}
	}
	if user != nil {
		s.UserID = user.ID
		if user.Name != "" {
			s.Name = user.Name
		}
	}
	return s
}

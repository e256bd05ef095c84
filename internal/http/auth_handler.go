package httpapi

import (
	"errors"
	"net/http"

	"compliance-dashboard/internal/auth"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"

	"go.uber.org/zap"
)

// LoginForm 登录表单；id 按 user_type 解释，也兼容直接传 patient_id / doctor_id
type LoginForm struct {
	UserType  domain.Role `json:"user_type"`
	ID        string      `json:"id"`
	PatientID string      `json:"patient_id"`
	DoctorID  string      `json:"doctor_id"`
	Name      string      `json:"name"`
}

func (f LoginForm) roleID() string {
	if f.ID != "" {
		return f.ID
	}
	if f.UserType == domain.RoleDoctor {
		return f.DoctorID
	}
	return f.PatientID
}

// SessionInfo 返回给前端的会话信息（不含令牌）
type SessionInfo struct {
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
	RoleID string      `json:"role_id"`
	UserID string      `json:"user_id"`
}

func sessionInfo(s *domain.Session) SessionInfo {
	return SessionInfo{Name: s.Name, Role: s.Role, RoleID: s.RoleID, UserID: s.UserID}
}

// AuthHandler 登录 / 登出
type AuthHandler struct {
	flow     *auth.Flow
	sessions sessionResolver
	views    *Views
	limiter  *auth.Limiter
	logger   *zap.Logger
}

func NewAuthHandler(flow *auth.Flow, store session.Store, cookie CookieConfig, views *Views, limiter *auth.Limiter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		sessions: sessionResolver{store: store, cookie: cookie},
		views:    views,
		limiter:  limiter,
		logger:   logger,
	}
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(auth.ClientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, Fail("too many login attempts, please wait"))
		return
	}

	var form LoginForm
	if err := readBodyJSON(r, maxBodyBytes, &form); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if form.UserType == "" {
		form.UserType = domain.RolePatient
	}
	req, err := auth.BuildLoginRequest(form.UserType, form.roleID(), form.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.flow.Login(r.Context(), req)
	if err != nil {
		var verr *auth.ValidationError
		if errors.Is(err, domain.ErrLoginRejected) || errors.As(err, &verr) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, Fail("Login failed. Please check your credentials."))
		return
	}
	h.sessions.setCookie(w, sess.Token)

	if h.views != nil {
		if err := h.views.Mount(r.Context(), sess); err != nil {
			h.logger.Warn("mount view after login failed", zap.String("role", string(sess.Role)), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, Ok(sessionInfo(sess)))
}

// Logout POST /api/v1/auth/logout（未登录也返回成功）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.sessions.token(r)
	if token != "" {
		if err := h.flow.Logout(r.Context(), token); err != nil {
			h.logger.Warn("logout failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("logout failed"))
			return
		}
	}
	h.sessions.clearCookie(w)
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// Me GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.resolve(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sessionInfo(sess)))
}

package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 pprof 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAuthRoutes 登录 / 登出 / 当前会话
func (r *Router) RegisterAuthRoutes(a *AuthHandler) {
	r.Handle("/api/v1/auth/login", allow(http.MethodPost, a.Login))
	r.Handle("/api/v1/auth/logout", allow(http.MethodPost, a.Logout))
	r.Handle("/api/v1/auth/me", allow(http.MethodGet, a.Me))
}

// RegisterPatientRoutes 患者视图
func (r *Router) RegisterPatientRoutes(p *PatientHandler) {
	r.Handle("/api/v1/patient/view", allow(http.MethodGet, p.View))
	r.Handle("/api/v1/patient/refresh", allow(http.MethodPost, p.Refresh))
	r.Handle("/api/v1/patient/pair", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			p.Pair(w, req)
		case http.MethodDelete:
			p.CancelPair(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterDoctorRoutes 医生视图
func (r *Router) RegisterDoctorRoutes(d *DoctorHandler) {
	r.Handle("/api/v1/doctor/view", allow(http.MethodGet, d.View))
	r.Handle("/api/v1/doctor/refresh", allow(http.MethodPost, d.Refresh))
	r.Handle("/api/v1/doctor/patients/export", allow(http.MethodGet, d.Export))
}

// RegisterRealtimeRoutes 视图变化推送
func (r *Router) RegisterRealtimeRoutes(s *StreamHandler) {
	r.Handle("/api/v1/ws", s.ServeWS)
}

package httpapi

import (
	"net/http"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"

	"go.uber.org/zap"
)

// PatientHandler 患者视图接口
type PatientHandler struct {
	sessions sessionResolver
	views    *Views
	logger   *zap.Logger
}

func NewPatientHandler(store session.Store, cookie CookieConfig, views *Views, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{sessions: sessionResolver{store: store, cookie: cookie}, views: views, logger: logger}
}

// View GET /api/v1/patient/view
func (h *PatientHandler) View(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.require(r.Context(), r, domain.RolePatient)
	if err != nil {
		writeError(w, err)
		return
	}
	pv, err := h.views.Patient(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(pv.Snapshot()))
}

// Refresh POST /api/v1/patient/refresh
func (h *PatientHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.require(r.Context(), r, domain.RolePatient)
	if err != nil {
		writeError(w, err)
		return
	}
	pv, err := h.views.Patient(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := pv.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, Partial(pv.Snapshot(), "some data could not be loaded"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(pv.Snapshot()))
}

// Pair POST /api/v1/patient/pair
// 设备选择可能一直等待，客户端断开即取消
func (h *PatientHandler) Pair(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.require(r.Context(), r, domain.RolePatient)
	if err != nil {
		writeError(w, err)
		return
	}
	pv, err := h.views.Patient(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := pv.Pair(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(pv.Snapshot()))
}

// CancelPair DELETE /api/v1/patient/pair
func (h *PatientHandler) CancelPair(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.require(r.Context(), r, domain.RolePatient)
	if err != nil {
		writeError(w, err)
		return
	}
	pv, err := h.views.Patient(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	pv.CancelPairing()
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

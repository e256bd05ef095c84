package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"
	"compliance-dashboard/internal/view"

	"go.uber.org/zap"
)

// DoctorHandler 医生视图接口
type DoctorHandler struct {
	sessions sessionResolver
	views    *Views
	logger   *zap.Logger
}

func NewDoctorHandler(store session.Store, cookie CookieConfig, views *Views, logger *zap.Logger) *DoctorHandler {
	return &DoctorHandler{sessions: sessionResolver{store: store, cookie: cookie}, views: views, logger: logger}
}

func (h *DoctorHandler) doctorView(r *http.Request) (*view.DoctorView, error) {
	sess, err := h.sessions.require(r.Context(), r, domain.RoleDoctor)
	if err != nil {
		return nil, err
	}
	return h.views.Doctor(r.Context(), sess)
}

// View GET /api/v1/doctor/view
func (h *DoctorHandler) View(w http.ResponseWriter, r *http.Request) {
	dv, err := h.doctorView(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(dv.Snapshot()))
}

// Refresh POST /api/v1/doctor/refresh
func (h *DoctorHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	dv, err := h.doctorView(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := dv.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, Partial(dv.Snapshot(), "some data could not be loaded"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(dv.Snapshot()))
}

// Export GET /api/v1/doctor/patients/export
func (h *DoctorHandler) Export(w http.ResponseWriter, r *http.Request) {
	dv, err := h.doctorView(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !dv.Snapshot().HasRoster {
		if err := dv.Refresh(r.Context()); err != nil && !dv.Snapshot().HasRoster {
			writeError(w, err)
			return
		}
	}

	data, err := view.ExportRoster(dv.Roster())
	if err != nil {
		h.logger.Error("export roster failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("export failed"))
		return
	}
	filename := fmt.Sprintf("patients_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

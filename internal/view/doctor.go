package view

import (
	"context"
	"fmt"
	"sync"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/presenter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DoctorBackend 医生视图依赖的后端接口
type DoctorBackend interface {
	GetDoctorPatients(ctx context.Context, doctorID string) ([]domain.PatientComplianceRow, error)
	GetDoctorDashboard(ctx context.Context, doctorID string) (*domain.DoctorDashboard, error)
}

// DoctorView 医生仪表盘：只读展示后端计算结果
type DoctorView struct {
	backend DoctorBackend
	session *domain.Session
	logger  *zap.Logger

	mu        sync.RWMutex
	roster    []domain.PatientComplianceRow
	rosterOK  bool
	dashboard *domain.DoctorDashboard
	updatedAt time.Time
}

// NewDoctorView 会话角色必须是 doctor
func NewDoctorView(sess *domain.Session, backend DoctorBackend, logger *zap.Logger) (*DoctorView, error) {
	if sess == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if sess.Role != domain.RoleDoctor {
		return nil, domain.ErrWrongRole
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoctorView{
		backend: backend,
		session: sess,
		logger:  logger.With(zap.String("doctor_id", sess.SubjectID())),
	}, nil
}

// Session 视图所属会话
func (v *DoctorView) Session() *domain.Session { return v.session }

// Mount 两路独立查询
func (v *DoctorView) Mount(ctx context.Context) error {
	if err := v.Refresh(ctx); err != nil {
		v.logger.Warn("doctor view loaded with missing data", zap.Error(err))
	}
	return nil
}

// Refresh 名单与汇总互不影响；失败保留原值
func (v *DoctorView) Refresh(ctx context.Context) error {
	id := v.session.SubjectID()
	var g errgroup.Group

	g.Go(func() error {
		rows, err := v.backend.GetDoctorPatients(ctx, id)
		if err != nil {
			v.logger.Warn("fetch patient roster failed", zap.Error(err))
			return fmt.Errorf("patients: %w", err)
		}
		v.mu.Lock()
		v.roster, v.rosterOK = rows, true
		v.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		d, err := v.backend.GetDoctorDashboard(ctx, id)
		if err != nil {
			v.logger.Warn("fetch dashboard failed", zap.Error(err))
			return fmt.Errorf("dashboard: %w", err)
		}
		v.mu.Lock()
		v.dashboard = d
		v.mu.Unlock()
		return nil
	})

	err := g.Wait()
	v.mu.Lock()
	v.updatedAt = time.Now()
	v.mu.Unlock()
	return err
}

// PatientRow 名单行
type PatientRow struct {
	domain.PatientComplianceRow
	Display        string          `json:"display"`
	Class          presenter.Class `json:"class"`
	Color          presenter.Color `json:"color"`
	NeedsAttention bool            `json:"needs_attention"`
	Trend          string          `json:"trend,omitempty"`
}

// AlertRow 告警行
type AlertRow struct {
	domain.Alert
	Badge presenter.Badge `json:"badge"`
}

// DoctorSnapshot 医生视图渲染模型
type DoctorSnapshot struct {
	Name              string       `json:"name"`
	DoctorID          string       `json:"doctor_id"`
	HasRoster         bool         `json:"has_roster"`
	Patients          []PatientRow `json:"patients"`
	HasDashboard      bool         `json:"has_dashboard"`
	TotalPatients     int          `json:"total_patients"`
	ActiveToday       int          `json:"active_today"`
	AverageCompliance float64      `json:"average_compliance"`
	NeedsAttention    int          `json:"needs_attention"`
	Alerts            []AlertRow   `json:"alerts"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Snapshot 当前渲染模型
func (v *DoctorView) Snapshot() DoctorSnapshot {
	v.mu.RLock()
	roster, rosterOK, dash, updated := v.roster, v.rosterOK, v.dashboard, v.updatedAt
	v.mu.RUnlock()

	s := DoctorSnapshot{
		Name:         v.session.Name,
		DoctorID:     v.session.RoleID,
		HasRoster:    rosterOK,
		Patients:     make([]PatientRow, 0, len(roster)),
		HasDashboard: dash != nil,
		Alerts:       []AlertRow{},
		UpdatedAt:    updated,
	}
	for _, r := range roster {
		row := PatientRow{
			PatientComplianceRow: r,
			Display:              presenter.FormatPercent(r.CompliancePercentage),
			Class:                presenter.ComplianceClass(r.CompliancePercentage),
			Color:                presenter.ComplianceColor(r.CompliancePercentage),
			NeedsAttention:       presenter.NeedsAttention(r.CompliancePercentage),
			Trend:                presenter.TrendLabel(r.UsageTrend),
		}
		if row.NeedsAttention {
			s.NeedsAttention++
		}
		s.Patients = append(s.Patients, row)
	}
	if dash != nil {
		s.TotalPatients = dash.TotalPatients
		s.ActiveToday = dash.ActiveToday
		s.AverageCompliance = dash.AverageCompliance
		for _, a := range dash.Alerts {
			s.Alerts = append(s.Alerts, AlertRow{Alert: a, Badge: presenter.SeverityBadge(a.Severity)})
		}
	}
	return s
}

// Roster 名单副本（导出用）
func (v *DoctorView) Roster() []domain.PatientComplianceRow {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]domain.PatientComplianceRow(nil), v.roster...)
}

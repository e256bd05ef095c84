package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"compliance-dashboard/internal/audit"
	"compliance-dashboard/internal/backend"
	"compliance-dashboard/internal/chart"
	"compliance-dashboard/internal/device"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/presenter"
	"compliance-dashboard/internal/reminder"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 患者视图的查询窗口（天）
const (
	UsageWindowDays     = 7
	AnalyticsWindowDays = 30
)

// PatientBackend 患者视图依赖的后端接口
type PatientBackend interface {
	GetUsage(ctx context.Context, patientID string, days int) ([]domain.UsageSession, error)
	GetCompliance(ctx context.Context, patientID string) (*domain.ComplianceSummary, error)
	GetAnalytics(ctx context.Context, patientID string, days int) (*domain.Analytics, error)
	RegisterDevice(ctx context.Context, patientID string, dev domain.Device) (*domain.DeviceRecord, error)
	ListDevices(ctx context.Context, patientID string) ([]domain.DeviceRecord, error)
	SendTelemetry(ctx context.Context, sample domain.TelemetrySample) error
}

// Realtime 后端实时推送
type Realtime interface {
	Subscribe(ctx context.Context, userID string, handle func(backend.RealtimeEvent)) error
}

// PatientDeps 患者视图依赖；可选项为 nil 时对应功能关闭
type PatientDeps struct {
	Backend    PatientBackend
	Realtime   Realtime
	Discoverer device.Discoverer
	Filter     device.Filter
	Source     device.Source
	Mirror     device.Mirror
	TrailSize  int
	Reminders  *reminder.Scheduler
	Audit      audit.Recorder
	Logger     *zap.Logger
}

// 视图变化事件
const (
	EventRefreshed   = "refreshed"
	EventSample      = "telemetry_sample"
	EventPairing     = "pairing"
	EventUsageUpdate = "usage_update"
)

// Event 推送给 BFF websocket / TUI 的变化通知
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// PatientView 患者仪表盘：三路独立查询 + 配对模拟器 + 提醒 + 实时刷新
type PatientView struct {
	deps    PatientDeps
	logger  *zap.Logger
	session *domain.Session

	pairer    *device.Pairer
	generator *device.Generator

	mu         sync.RWMutex
	usage      []domain.UsageSession
	usageOK    bool
	compliance *domain.ComplianceSummary
	analytics  *domain.Analytics
	devices    []domain.DeviceRecord
	devicesOK  bool
	updatedAt  time.Time

	reminder  *reminder.Handle
	rtCancel  context.CancelFunc
	rtDone    chan struct{}
	unmounted bool
	unmountMu sync.Mutex
	listeners listeners
}

// NewPatientView 会话角色必须是 patient
func NewPatientView(sess *domain.Session, deps PatientDeps) (*PatientView, error) {
	if sess == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if sess.Role != domain.RolePatient {
		return nil, domain.ErrWrongRole
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Source == nil {
		deps.Source = device.NewSyntheticSource(device.DefaultPeriod)
	}

	v := &PatientView{
		deps:    deps,
		session: sess,
		logger:  deps.Logger.With(zap.String("patient_id", sess.SubjectID())),
	}

	opts := []device.GeneratorOption{device.WithSampleHook(func(s domain.TelemetrySample) {
		v.listeners.emit(Event{Type: EventSample, At: time.Now(), Data: s})
	})}
	if deps.Mirror != nil {
		opts = append(opts, device.WithMirror(deps.Mirror))
	}
	v.generator = device.NewGenerator(deps.Source, deps.Backend, device.NewTrail(deps.TrailSize), v.logger, opts...)
	v.pairer = device.NewPairer(device.PairerConfig{
		Discoverer:  deps.Discoverer,
		Filter:      deps.Filter,
		Registrar:   deps.Backend,
		Generator:   v.generator,
		Audit:       deps.Audit,
		OnConnected: v.onDeviceConnected,
	}, v.logger)
	return v, nil
}

// Session 视图所属会话
func (v *PatientView) Session() *domain.Session { return v.session }

// Mount 初次加载数据，安排提醒，开始订阅实时推送
func (v *PatientView) Mount(ctx context.Context) error {
	if err := v.Refresh(ctx); err != nil {
		v.logger.Warn("patient view loaded with missing data", zap.Error(err))
	}

	if v.deps.Reminders != nil {
		h := v.deps.Reminders.Schedule(ctx, v.session.SubjectID())
		v.unmountMu.Lock()
		v.reminder = h
		v.unmountMu.Unlock()
	}

	if v.deps.Realtime != nil {
		v.startRealtime()
	}
	return nil
}

// Refresh 三路查询相互独立：一路失败只记录日志并保留该槽位原值
// 返回第一个失败的错误，仅用于提示
func (v *PatientView) Refresh(ctx context.Context) error {
	id := v.session.SubjectID()
	var g errgroup.Group

	g.Go(func() error {
		usage, err := v.deps.Backend.GetUsage(ctx, id, UsageWindowDays)
		if err != nil {
			v.logger.Warn("fetch usage failed", zap.Error(err))
			return fmt.Errorf("usage: %w", err)
		}
		v.mu.Lock()
		v.usage, v.usageOK = usage, true
		v.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		c, err := v.deps.Backend.GetCompliance(ctx, id)
		if err != nil {
			v.logger.Warn("fetch compliance failed", zap.Error(err))
			return fmt.Errorf("compliance: %w", err)
		}
		v.mu.Lock()
		v.compliance = c
		v.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		a, err := v.deps.Backend.GetAnalytics(ctx, id, AnalyticsWindowDays)
		if err != nil {
			v.logger.Warn("fetch analytics failed", zap.Error(err))
			return fmt.Errorf("analytics: %w", err)
		}
		v.mu.Lock()
		v.analytics = a
		v.mu.Unlock()
		return nil
	})
	// 已登记设备只作展示，失败不影响刷新结果
	g.Go(func() error {
		devs, err := v.deps.Backend.ListDevices(ctx, id)
		if err != nil {
			v.logger.Warn("fetch devices failed", zap.Error(err))
			return nil
		}
		v.mu.Lock()
		v.devices, v.devicesOK = devs, true
		v.mu.Unlock()
		return nil
	})

	err := g.Wait()
	v.mu.Lock()
	v.updatedAt = time.Now()
	v.mu.Unlock()
	v.listeners.emit(Event{Type: EventRefreshed, At: time.Now()})
	return err
}

// Pair 发起配对；成功后自动刷新三路数据
func (v *PatientView) Pair(ctx context.Context) (domain.Device, error) {
	dev, err := v.pairer.Pair(ctx, v.session.SubjectID())
	v.listeners.emit(Event{Type: EventPairing, At: time.Now(), Data: v.pairer.Status()})
	return dev, err
}

// CancelPairing 放弃正在进行的设备选择
func (v *PatientView) CancelPairing() { v.pairer.Cancel() }

func (v *PatientView) onDeviceConnected(dev domain.Device) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := v.Refresh(ctx); err != nil {
		v.logger.Warn("refresh after pairing incomplete", zap.String("device_id", dev.ID), zap.Error(err))
	}
}

func (v *PatientView) startRealtime() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	v.unmountMu.Lock()
	v.rtCancel, v.rtDone = cancel, done
	v.unmountMu.Unlock()

	go func() {
		defer close(done)
		err := v.deps.Realtime.Subscribe(ctx, v.session.SubjectID(), func(ev backend.RealtimeEvent) {
			if ev.Type != backend.EventUsageUpdate {
				return
			}
			rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
			defer rcancel()
			if err := v.Refresh(rctx); err != nil && !errors.Is(err, context.Canceled) {
				v.logger.Warn("refresh after usage update incomplete", zap.Error(err))
			}
			v.listeners.emit(Event{Type: EventUsageUpdate, At: time.Now(), Data: ev.Data})
		})
		if err != nil {
			v.logger.Warn("realtime subscription ended", zap.Error(err))
		}
	}()
}

// Unmount 停止生成器、提醒和实时订阅；可重复调用
func (v *PatientView) Unmount() {
	v.unmountMu.Lock()
	if v.unmounted {
		v.unmountMu.Unlock()
		return
	}
	v.unmounted = true
	rem, cancel, done := v.reminder, v.rtCancel, v.rtDone
	v.unmountMu.Unlock()

	v.pairer.Stop()
	rem.Stop()
	if cancel != nil {
		cancel()
		<-done
	}
	v.logger.Info("patient view unmounted")
}

// Subscribe 视图变化回调，返回取消函数
func (v *PatientView) Subscribe(fn func(Event)) func() { return v.listeners.add(fn) }

// ComplianceCard 合规卡片
type ComplianceCard struct {
	Percentage        float64           `json:"percentage"`
	Display           string            `json:"display"`
	Class             presenter.Class   `json:"class"`
	Color             presenter.Color   `json:"color"`
	NeedsAttention    bool              `json:"needs_attention"`
	Trend             string            `json:"trend,omitempty"`
	TrendDirection    string            `json:"trend_direction,omitempty"`
	TotalSessions     int               `json:"total_sessions"`
	AverageDailyHours float64           `json:"average_daily_hours"`
	LastSession       *domain.Timestamp `json:"last_session,omitempty"`
	DeviceConnected   bool              `json:"device_connected"`
}

// PatientSnapshot 患者视图渲染模型
type PatientSnapshot struct {
	Name          string                   `json:"name"`
	PatientID     string                   `json:"patient_id"`
	HasUsage      bool                     `json:"has_usage"`
	Usage         []domain.UsageSession    `json:"usage"`
	HasCompliance bool                     `json:"has_compliance"`
	Compliance    *ComplianceCard          `json:"compliance,omitempty"`
	HasAnalytics  bool                     `json:"has_analytics"`
	ActiveDays    int                      `json:"active_days"`
	UsageChart    chart.Config             `json:"usage_chart"`
	DayNightChart chart.Config             `json:"day_night_chart"`
	Pairing       device.Status            `json:"pairing"`
	HasDevices    bool                     `json:"has_devices"`
	Devices       []domain.DeviceRecord    `json:"devices"`
	RecentSamples []domain.TelemetrySample `json:"recent_samples"`
	Reminders     bool                     `json:"reminders"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// Snapshot 当前渲染模型
func (v *PatientView) Snapshot() PatientSnapshot {
	v.mu.RLock()
	usage := append([]domain.UsageSession(nil), v.usage...)
	devices := append([]domain.DeviceRecord(nil), v.devices...)
	usageOK, comp, an, updated := v.usageOK, v.compliance, v.analytics, v.updatedAt
	devicesOK := v.devicesOK
	v.mu.RUnlock()

	v.unmountMu.Lock()
	reminders := v.reminder.Active()
	v.unmountMu.Unlock()

	s := PatientSnapshot{
		Name:          v.session.Name,
		PatientID:     v.session.RoleID,
		HasUsage:      usageOK,
		Usage:         usage,
		HasCompliance: comp != nil,
		HasAnalytics:  an != nil,
		UsageChart:    chart.UsageLine(an),
		DayNightChart: chart.DayNightPie(an),
		Pairing:       v.pairer.Status(),
		HasDevices:    devicesOK,
		Devices:       devices,
		RecentSamples: v.generator.Trail().Recent(),
		Reminders:     reminders,
		UpdatedAt:     updated,
	}
	if s.Usage == nil {
		s.Usage = []domain.UsageSession{}
	}
	if s.Devices == nil {
		s.Devices = []domain.DeviceRecord{}
	}
	if an != nil {
		s.ActiveDays = an.ActiveDays
	}
	if comp != nil {
		s.Compliance = complianceCard(comp)
	}
	return s
}

func complianceCard(c *domain.ComplianceSummary) *ComplianceCard {
	card := &ComplianceCard{
		Percentage:        c.CompliancePercentage,
		Display:           presenter.FormatPercent(c.CompliancePercentage),
		Class:             presenter.ComplianceClass(c.CompliancePercentage),
		Color:             presenter.ComplianceColor(c.CompliancePercentage),
		NeedsAttention:    presenter.NeedsAttention(c.CompliancePercentage),
		Trend:             presenter.TrendLabel(c.UsageTrend),
		TotalSessions:     c.TotalSessions,
		AverageDailyHours: c.AverageDailyHours,
		LastSession:       c.LastSession,
		DeviceConnected:   c.DeviceConnected,
	}
	if c.UsageTrend != nil {
		card.TrendDirection = c.UsageTrend.Direction
	}
	return card
}

// listeners 视图事件订阅者
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(Event)
}

func (l *listeners) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

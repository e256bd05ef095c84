package app

import (
	"context"
	"database/sql"
	"fmt"

	"compliance-dashboard/internal/audit"
	"compliance-dashboard/internal/backend"
	"compliance-dashboard/internal/config"
	"compliance-dashboard/internal/database"
	"compliance-dashboard/internal/device"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/mqtt"
	"compliance-dashboard/internal/redis"
	"compliance-dashboard/internal/reminder"
	"compliance-dashboard/internal/session"
	"compliance-dashboard/internal/view"

	"go.uber.org/zap"
)

// 遥测镜像 Stream 最大长度
const telemetryStreamMaxLen = 10000

// App 两个入口共用的组件装配
// 可选组件连接失败时降级：审计只写日志，设备发现返回不可用，提醒关闭
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Backend   *backend.Client
	Sessions  session.Store
	Redis     *redis.Client
	DB        *sql.DB
	MQTT      *mqtt.Client
	Audit     audit.Recorder
	Reminders *reminder.Scheduler

	broker mqtt.Broker
}

// New 按配置装配组件；只有会话存储不可用才返回错误
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Backend: backend.NewClient(backend.Options{
			BaseURL:    cfg.Backend.BaseURL,
			Timeout:    cfg.Backend.Timeout,
			RetryCount: cfg.Backend.RetryCount,
		}, logger),
	}

	if cfg.Session.Store == "redis" || cfg.Device.StreamEnabled {
		a.Redis = redis.NewRedisClient(&cfg.Redis)
	}
	switch cfg.Session.Store {
	case "redis":
		if err := redis.Ping(ctx, a.Redis); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		a.Sessions = session.NewRedisStore(a.Redis, cfg.Session.TTL)
	default:
		a.Sessions = session.NewMemoryStore(cfg.Session.TTL)
	}

	if a.needsMQTT() {
		c, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, device discovery and push reminders disabled", zap.Error(err))
		} else {
			a.MQTT = c
			a.broker = c
		}
	}

	a.Audit = a.buildAudit(ctx)

	rem, err := a.buildReminders()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Reminders = rem
	return a, nil
}

func (a *App) needsMQTT() bool {
	cfg := a.Config
	return cfg.Device.Mode == "mqtt" || cfg.Device.SourceMode == "mqtt" || cfg.Reminder.Notifier == "mqtt"
}

func (a *App) buildAudit(ctx context.Context) audit.Recorder {
	zr := audit.NewZapRecorder(a.Logger)
	if !a.Config.Audit.DBEnabled {
		return zr
	}
	db, err := database.OpenAudit(ctx, &a.Config.Database)
	if err != nil {
		a.Logger.Warn("audit DB enabled but connection failed, falling back to log", zap.Error(err))
		return zr
	}
	pr := audit.NewPostgresRecorder(db)
	if err := pr.EnsureSchema(ctx); err != nil {
		a.Logger.Warn("audit schema init failed, falling back to log", zap.Error(err))
		_ = db.Close()
		return zr
	}
	a.DB = db
	a.Logger.Info("audit DB enabled")
	return audit.Multi{zr, pr}
}

func (a *App) buildReminders() (*reminder.Scheduler, error) {
	cfg := a.Config.Reminder
	var n reminder.Notifier
	switch cfg.Notifier {
	case "none", "":
		return nil, nil
	case "mqtt":
		if a.broker == nil {
			n = reminder.Disabled{}
		} else {
			n = reminder.NewMQTTNotifier(a.broker, a.Config.MQTT.NotificationTopic, a.Config.MQTT.QoS)
		}
	default:
		n = reminder.NewLogNotifier(a.Logger)
	}
	s, err := reminder.NewScheduler(n, cfg.Delay, cfg.Every, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("reminder schedule: %w", err)
	}
	return s, nil
}

func (a *App) discoverer() device.Discoverer {
	switch a.Config.Device.Mode {
	case "synthetic":
		return device.SyntheticDiscoverer{Delay: a.Config.Device.PairDelay}
	case "mqtt":
		// broker 为 nil 时返回 ErrCapabilityUnavailable
		return device.NewMQTTDiscoverer(a.broker, a.Config.MQTT.AnnounceTopic, a.Config.MQTT.QoS, a.Logger)
	default:
		return device.Unavailable{}
	}
}

func (a *App) source() device.Source {
	if a.Config.Device.SourceMode == "mqtt" && a.broker != nil {
		return device.NewMQTTSource(a.broker, a.Config.MQTT.UsageTopic, a.Config.MQTT.QoS, a.Logger)
	}
	return device.NewSyntheticSource(a.Config.Device.Period)
}

// NewPatientView 每个会话一个视图，生成器和配对状态互不共享
func (a *App) NewPatientView(s *domain.Session) (*view.PatientView, error) {
	deps := view.PatientDeps{
		Backend:    a.Backend,
		Discoverer: a.discoverer(),
		Filter:     device.Filter{NamePrefixes: a.Config.Device.NamePrefixes},
		Source:     a.source(),
		TrailSize:  a.Config.Device.TrailSize,
		Reminders:  a.Reminders,
		Audit:      a.Audit,
		Logger:     a.Logger,
	}
	if a.Config.Realtime.Enabled {
		deps.Realtime = a.Backend
	}
	if a.Config.Device.StreamEnabled && a.Redis != nil {
		deps.Mirror = device.NewStreamMirror(a.Redis, a.Config.Device.StreamName, telemetryStreamMaxLen)
	}
	return view.NewPatientView(s, deps)
}

func (a *App) NewDoctorView(s *domain.Session) (*view.DoctorView, error) {
	return view.NewDoctorView(s, a.Backend, a.Logger)
}

// Close 释放外部连接；可重复调用
func (a *App) Close() {
	if a.Reminders != nil {
		a.Reminders.Stop()
		a.Reminders = nil
	}
	if a.MQTT != nil {
		a.MQTT.Disconnect()
		a.MQTT = nil
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
		a.Redis = nil
	}
	if a.DB != nil {
		_ = a.DB.Close()
		a.DB = nil
	}
}

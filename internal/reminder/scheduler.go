package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// 提醒文案
const (
	Title = "Device Usage Reminder"
	Body  = "Don't forget to use your medical device today for better health outcomes!"
)

// DefaultEvery 周期提醒
const DefaultEvery = "@every 24h"

// Scheduler 一次性延时提醒 + 周期提醒；不跟踪送达
type Scheduler struct {
	notifier Notifier
	delay    time.Duration
	every    cron.Schedule
	cron     *cron.Cron
	logger   *zap.Logger

	startOnce sync.Once
}

// NewScheduler every 为 cron 表达式/描述符（@every 24h），也接受 Go duration
func NewScheduler(notifier Notifier, delay time.Duration, every string, logger *zap.Logger) (*Scheduler, error) {
	if notifier == nil {
		notifier = Disabled{}
	}
	if every == "" {
		every = DefaultEvery
	}
	sched, err := ParseSchedule(every)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		notifier: notifier,
		delay:    delay,
		every:    sched,
		cron:     cron.New(),
		logger:   logger,
	}, nil
}

// ParseSchedule 先按 cron 解析，失败再按 duration 解析
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if s, err := parser.Parse(spec); err == nil {
		return s, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("reminder interval must be positive: %q", spec)
	}
	return cron.ConstantDelaySchedule{Delay: d}, nil
}

// Schedule 未授权时先请求授权；拒绝时返回空 Handle
func (s *Scheduler) Schedule(ctx context.Context, patientID string) *Handle {
	perm := s.notifier.Permission()
	if perm == PermissionDefault {
		p, err := s.notifier.RequestPermission(ctx)
		if err != nil {
			s.logger.Debug("notification permission request failed", zap.Error(err))
		}
		perm = p
	}
	if perm != PermissionGranted {
		s.logger.Debug("reminders disabled", zap.String("patient_id", patientID), zap.String("permission", string(perm)))
		return &Handle{}
	}

	s.startOnce.Do(s.cron.Start)

	fire := func() {
		if err := s.notifier.Notify(context.Background(), patientID, Title, Body); err != nil {
			s.logger.Warn("reminder notify failed", zap.String("patient_id", patientID), zap.Error(err))
		}
	}
	h := &Handle{c: s.cron}
	h.timer = time.AfterFunc(s.delay, fire)
	h.entry = s.cron.Schedule(s.every, cron.FuncJob(fire))
	return h
}

// Stop 停止 cron（进程退出时）
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Handle 取消一次性和周期提醒；Stop 可重复调用
type Handle struct {
	c     *cron.Cron
	timer *time.Timer
	entry cron.EntryID
	once  sync.Once
}

func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.timer != nil {
			h.timer.Stop()
		}
		if h.c != nil {
			h.c.Remove(h.entry)
		}
	})
}

// Active 是否安排了提醒
func (h *Handle) Active() bool {
	return h != nil && h.timer != nil
}

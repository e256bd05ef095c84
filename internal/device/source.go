package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/mqtt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// 合成样本的使用时长范围（分钟）
const (
	MinUsageMinutes = 60
	MaxUsageMinutes = 539
)

// DefaultPeriod 合成样本间隔
const DefaultPeriod = 30 * time.Second

// Source 遥测样本来源，Run 阻塞直到 ctx 结束
type Source interface {
	Run(ctx context.Context, patientID string, dev domain.Device, emit func(domain.TelemetrySample)) error
}

// SyntheticSource 每个周期随机生成一条样本
type SyntheticSource struct {
	Period time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

func NewSyntheticSource(period time.Duration) *SyntheticSource {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &SyntheticSource{
		Period: period,
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:    time.Now,
	}
}

// Synthesize 时长在 [60, 539] 均匀分布，日/夜各一半概率
func (s *SyntheticSource) Synthesize(patientID string, dev domain.Device) domain.TelemetrySample {
	s.mu.Lock()
	duration := MinUsageMinutes + s.rnd.IntN(MaxUsageMinutes-MinUsageMinutes+1)
	tod := domain.Day
	if s.rnd.IntN(2) == 1 {
		tod = domain.Night
	}
	s.mu.Unlock()

	return domain.TelemetrySample{
		ID:            ulid.Make().String(),
		PatientID:     patientID,
		DeviceID:      dev.ID,
		UsageDuration: duration,
		TimeOfDay:     tod,
		Timestamp:     s.now().UTC(),
	}
}

func (s *SyntheticSource) Run(ctx context.Context, patientID string, dev domain.Device, emit func(domain.TelemetrySample)) error {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			emit(s.Synthesize(patientID, dev))
		}
	}
}

// usageFrame 设备在 devices/{device_id}/usage 上报的使用帧
type usageFrame struct {
	UsageDuration int              `json:"usage_duration"`
	TimeOfDay     domain.TimeOfDay `json:"time_of_day"`
	Timestamp     *time.Time       `json:"timestamp,omitempty"`
}

// MQTTSource 转发真实设备的使用帧
type MQTTSource struct {
	broker  mqtt.Broker
	pattern string
	qos     byte
	logger  *zap.Logger
}

func NewMQTTSource(broker mqtt.Broker, pattern string, qos byte, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{broker: broker, pattern: pattern, qos: qos, logger: logger}
}

func (s *MQTTSource) Run(ctx context.Context, patientID string, dev domain.Device, emit func(domain.TelemetrySample)) error {
	if s.broker == nil || !s.broker.IsConnected() {
		return domain.ErrCapabilityUnavailable
	}
	topic := mqtt.FormatTopic(s.pattern, "device_id", dev.ID)

	handler := func(_ string, payload []byte) error {
		var f usageFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			s.logger.Warn("invalid usage frame", zap.String("device_id", dev.ID), zap.Error(err))
			return nil
		}
		if f.UsageDuration <= 0 || !f.TimeOfDay.Valid() {
			s.logger.Warn("usage frame out of range",
				zap.String("device_id", dev.ID),
				zap.Int("usage_duration", f.UsageDuration),
				zap.String("time_of_day", string(f.TimeOfDay)),
			)
			return nil
		}
		ts := time.Now().UTC()
		if f.Timestamp != nil {
			ts = f.Timestamp.UTC()
		}
		emit(domain.TelemetrySample{
			ID:            ulid.Make().String(),
			PatientID:     patientID,
			DeviceID:      dev.ID,
			UsageDuration: f.UsageDuration,
			TimeOfDay:     f.TimeOfDay,
			Timestamp:     ts,
		})
		return nil
	}

	if err := s.broker.Subscribe(topic, s.qos, handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	<-ctx.Done()
	if err := s.broker.Unsubscribe(topic); err != nil {
		s.logger.Warn("unsubscribe usage topic", zap.String("topic", topic), zap.Error(err))
	}
	return nil
}

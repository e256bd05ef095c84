package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/mqtt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Filter 设备名前缀白名单
type Filter struct {
	NamePrefixes []string
}

// Matches 没有配置前缀时接受任意名称
func (f Filter) Matches(name string) bool {
	if len(f.NamePrefixes) == 0 {
		return true
	}
	for _, p := range f.NamePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Discoverer 宿主平台的设备发现能力
// 可能无限期等待用户选择，由 ctx 控制取消
type Discoverer interface {
	RequestDevice(ctx context.Context, filter Filter) (domain.Device, error)
}

// Unavailable 平台不支持设备发现
type Unavailable struct{}

func (Unavailable) RequestDevice(context.Context, Filter) (domain.Device, error) {
	return domain.Device{}, domain.ErrCapabilityUnavailable
}

// SyntheticDiscoverer 演示模式：延时后伪造一个符合前缀的设备
type SyntheticDiscoverer struct {
	Delay time.Duration
}

func (d SyntheticDiscoverer) RequestDevice(ctx context.Context, filter Filter) (domain.Device, error) {
	if d.Delay > 0 {
		t := time.NewTimer(d.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.Device{}, fmt.Errorf("%w: %v", domain.ErrPairingCancelled, ctx.Err())
		case <-t.C:
		}
	}
	prefix := "ESP32"
	if len(filter.NamePrefixes) > 0 {
		prefix = filter.NamePrefixes[0]
	}
	id := uuid.NewString()
	return domain.Device{
		Name: fmt.Sprintf("%s-%s", prefix, strings.ToUpper(id[:4])),
		ID:   id,
	}, nil
}

// announcement devices/{device_id}/announce 负载
type announcement struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// MQTTDiscoverer 等待真实设备在 MQTT 上发布上线公告
type MQTTDiscoverer struct {
	broker mqtt.Broker
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewMQTTDiscoverer(broker mqtt.Broker, topic string, qos byte, logger *zap.Logger) *MQTTDiscoverer {
	return &MQTTDiscoverer{broker: broker, topic: topic, qos: qos, logger: logger}
}

// RequestDevice 返回第一个名称匹配的设备；ctx 结束视为用户取消
func (d *MQTTDiscoverer) RequestDevice(ctx context.Context, filter Filter) (domain.Device, error) {
	if d == nil || d.broker == nil || !d.broker.IsConnected() {
		return domain.Device{}, domain.ErrCapabilityUnavailable
	}

	found := make(chan domain.Device, 1)
	handler := func(topic string, payload []byte) error {
		var a announcement
		if err := json.Unmarshal(payload, &a); err != nil {
			d.logger.Debug("ignore malformed announcement", zap.String("topic", topic), zap.Error(err))
			return nil
		}
		if a.ID == "" {
			a.ID = topicDeviceID(topic)
		}
		if a.Name == "" || a.ID == "" || !filter.Matches(a.Name) {
			return nil
		}
		select {
		case found <- domain.Device{Name: a.Name, ID: a.ID}:
		default:
		}
		return nil
	}

	if err := d.broker.Subscribe(d.topic, d.qos, handler); err != nil {
		return domain.Device{}, fmt.Errorf("%w: %v", domain.ErrCapabilityUnavailable, err)
	}
	defer func() {
		if err := d.broker.Unsubscribe(d.topic); err != nil {
			d.logger.Warn("unsubscribe announce topic", zap.Error(err))
		}
	}()

	select {
	case dev := <-found:
		return dev, nil
	case <-ctx.Done():
		return domain.Device{}, fmt.Errorf("%w: %v", domain.ErrPairingCancelled, ctx.Err())
	}
}

// topicDeviceID devices/{device_id}/... 中的设备 ID
func topicDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

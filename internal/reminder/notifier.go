package reminder

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/mqtt"

	"go.uber.org/zap"
)

// Permission 通知授权状态
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notifier 宿主平台的通知能力
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Notify(ctx context.Context, patientID, title, body string) error
}

// Disabled 平台不支持通知
type Disabled struct{}

func (Disabled) Permission() Permission { return PermissionDenied }

func (Disabled) RequestPermission(context.Context) (Permission, error) {
	return PermissionDenied, domain.ErrCapabilityUnavailable
}

func (Disabled) Notify(context.Context, string, string, string) error {
	return domain.ErrCapabilityUnavailable
}

// LogNotifier 通知写入日志；首次请求即授权
type LogNotifier struct {
	logger *zap.Logger

	mu   sync.Mutex
	perm Permission
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger, perm: PermissionDefault}
}

func (n *LogNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perm
}

func (n *LogNotifier) RequestPermission(context.Context) (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.perm == PermissionDefault {
		n.perm = PermissionGranted
	}
	return n.perm, nil
}

func (n *LogNotifier) Notify(_ context.Context, patientID, title, body string) error {
	n.logger.Info("reminder",
		zap.String("patient_id", patientID),
		zap.String("title", title),
		zap.String("body", body),
	)
	return nil
}

// notification MQTT 推送负载
type notification struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// MQTTNotifier 推送到 patients/{patient_id}/notifications，由患者设备/App 展示
type MQTTNotifier struct {
	broker  mqtt.Broker
	pattern string
	qos     byte
}

func NewMQTTNotifier(broker mqtt.Broker, pattern string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{broker: broker, pattern: pattern, qos: qos}
}

// Permission broker 未连接时为 default，等待 RequestPermission 判定
func (n *MQTTNotifier) Permission() Permission {
	if n.broker != nil && n.broker.IsConnected() {
		return PermissionGranted
	}
	return PermissionDefault
}

func (n *MQTTNotifier) RequestPermission(context.Context) (Permission, error) {
	if n.broker == nil || !n.broker.IsConnected() {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (n *MQTTNotifier) Notify(_ context.Context, patientID, title, body string) error {
	if n.broker == nil {
		return domain.ErrCapabilityUnavailable
	}
	payload, err := json.Marshal(notification{Title: title, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.broker.Publish(mqtt.FormatTopic(n.pattern, "patient_id", patientID), n.qos, false, payload)
}

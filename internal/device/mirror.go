package device

import (
	"context"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/redis"
)

// Mirror 已发送样本的旁路副本
type Mirror interface {
	Publish(ctx context.Context, sample domain.TelemetrySample) error
}

// StreamMirror 写入 Redis Stream，供下游消费
type StreamMirror struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamMirror(client *redis.Client, stream string, maxLen int64) *StreamMirror {
	return &StreamMirror{client: client, stream: stream, maxLen: maxLen}
}

func (m *StreamMirror) Publish(ctx context.Context, sample domain.TelemetrySample) error {
	_, err := redis.PublishToStream(ctx, m.client, m.stream, m.maxLen, map[string]interface{}{
		"sample_id":      sample.ID,
		"patient_id":     sample.PatientID,
		"device_id":      sample.DeviceID,
		"usage_duration": sample.UsageDuration,
		"time_of_day":    string(sample.TimeOfDay),
		"timestamp":      sample.Timestamp.UTC().Format(time.RFC3339),
	})
	return err
}

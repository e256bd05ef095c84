package device

import (
	"sync"

	"compliance-dashboard/internal/domain"
)

// DefaultTrailSize 展示的最近样本数
const DefaultTrailSize = 3

// Trail 最近 N 条遥测样本，最新的在前
type Trail struct {
	mu      sync.Mutex
	size    int
	samples []domain.TelemetrySample
}

func NewTrail(size int) *Trail {
	if size <= 0 || size > DefaultTrailSize {
		size = DefaultTrailSize
	}
	return &Trail{size: size}
}

// Add 追加一条样本，超出容量时丢弃最旧的
func (t *Trail) Add(s domain.TelemetrySample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append([]domain.TelemetrySample{s}, t.samples...)
	if len(t.samples) > t.size {
		t.samples = t.samples[:t.size]
	}
}

// Recent 最新在前的副本
func (t *Trail) Recent() []domain.TelemetrySample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TelemetrySample, len(t.samples))
	copy(out, t.samples)
	return out
}

func (t *Trail) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
}

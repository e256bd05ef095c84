package device

import (
	"context"
	"sync"

	"compliance-dashboard/internal/domain"

	"go.uber.org/zap"
)

// Transmitter 遥测上报（后端 POST /bluetooth/data）
type Transmitter interface {
	SendTelemetry(ctx context.Context, sample domain.TelemetrySample) error
}

// Generator 从 Source 取样本并上报；单条失败只记录日志，不中断循环
type Generator struct {
	source   Source
	tx       Transmitter
	trail    *Trail
	mirror   Mirror
	logger   *zap.Logger
	onSample func(domain.TelemetrySample)
}

// GeneratorOption Generator 可选项
type GeneratorOption func(*Generator)

// WithMirror 样本同时写入旁路
func WithMirror(m Mirror) GeneratorOption { return func(g *Generator) { g.mirror = m } }

// WithSampleHook 每条样本追加到 Trail 之后回调
func WithSampleHook(fn func(domain.TelemetrySample)) GeneratorOption {
	return func(g *Generator) { g.onSample = fn }
}

func NewGenerator(source Source, tx Transmitter, trail *Trail, logger *zap.Logger, opts ...GeneratorOption) *Generator {
	if trail == nil {
		trail = NewTrail(DefaultTrailSize)
	}
	g := &Generator{source: source, tx: tx, trail: trail, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Trail 最近样本
func (g *Generator) Trail() *Trail { return g.trail }

// Start 启动生成循环；返回的 Handle 负责停止
func (g *Generator) Start(ctx context.Context, patientID string, dev domain.Device) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		g.logger.Info("telemetry generator started",
			zap.String("patient_id", patientID),
			zap.String("device_id", dev.ID),
		)
		err := g.source.Run(ctx, patientID, dev, func(s domain.TelemetrySample) {
			g.handle(ctx, s)
		})
		if err != nil {
			g.logger.Warn("telemetry source stopped", zap.String("device_id", dev.ID), zap.Error(err))
		}
		g.logger.Info("telemetry generator stopped", zap.String("device_id", dev.ID))
	}()
	return h
}

func (g *Generator) handle(ctx context.Context, s domain.TelemetrySample) {
	if err := g.tx.SendTelemetry(ctx, s); err != nil {
		g.logger.Warn("send telemetry failed",
			zap.String("sample_id", s.ID),
			zap.String("device_id", s.DeviceID),
			zap.Error(err),
		)
	}
	if g.mirror != nil {
		if err := g.mirror.Publish(ctx, s); err != nil {
			g.logger.Warn("mirror telemetry failed", zap.String("sample_id", s.ID), zap.Error(err))
		}
	}
	// 发送失败的样本也展示，状态以后端为准
	g.trail.Add(s)
	if g.onSample != nil {
		g.onSample(s)
	}
}

// Handle 停止生成循环；Stop 可重复调用
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop 取消并等待循环退出
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done 循环退出后关闭
func (h *Handle) Done() <-chan struct{} { return h.done }

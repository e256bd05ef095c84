package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"compliance-dashboard/internal/audit"
	"compliance-dashboard/internal/domain"

	"go.uber.org/zap"
)

// Registrar 设备注册（后端 POST /patients/{id}/devices）
type Registrar interface {
	RegisterDevice(ctx context.Context, patientID string, dev domain.Device) (*domain.DeviceRecord, error)
}

// PairerConfig Pairer 依赖
type PairerConfig struct {
	Discoverer  Discoverer
	Filter      Filter
	Registrar   Registrar
	Generator   *Generator
	Audit       audit.Recorder
	OnConnected func(domain.Device)
}

// Status 配对状态快照
type Status struct {
	State   domain.PairingState `json:"state"`
	Device  *domain.Device      `json:"device,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Pairer 配对状态机 Idle → Pairing → Paired
type Pairer struct {
	cfg    PairerConfig
	logger *zap.Logger

	mu      sync.Mutex
	state   domain.PairingState
	device  *domain.Device
	message string
	cancel  context.CancelFunc
	handle  *Handle
	epoch   uint64 // Stop 递增；进行中的 Pair 据此放弃结果
}

func NewPairer(cfg PairerConfig, logger *zap.Logger) *Pairer {
	if cfg.Discoverer == nil {
		cfg.Discoverer = Unavailable{}
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}
	return &Pairer{cfg: cfg, logger: logger, state: domain.PairingIdle}
}

// Status 当前状态
func (p *Pairer) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{State: p.state, Message: p.message}
	if p.device != nil {
		d := *p.device
		st.Device = &d
	}
	return st
}

// Pair 只能从 Idle 发起；任何失败都回到 Idle 并给出提示
func (p *Pairer) Pair(ctx context.Context, patientID string) (domain.Device, error) {
	p.mu.Lock()
	if p.state != domain.PairingIdle {
		p.mu.Unlock()
		return domain.Device{}, domain.ErrAlreadyPairing
	}
	p.state = domain.PairingPairing
	p.message = "Searching for devices..."
	dctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	epoch := p.epoch
	p.mu.Unlock()
	defer cancel()

	dev, err := p.cfg.Discoverer.RequestDevice(dctx, p.cfg.Filter)
	if err != nil {
		p.fail(ctx, epoch, patientID, failureMessage(err), err)
		return domain.Device{}, err
	}

	if p.cfg.Registrar != nil {
		if _, err := p.cfg.Registrar.RegisterDevice(dctx, patientID, dev); err != nil {
			err = fmt.Errorf("register device: %w", err)
			p.fail(ctx, epoch, patientID, "Failed to register device", err)
			return domain.Device{}, err
		}
	}

	p.mu.Lock()
	if p.epoch != epoch || p.state != domain.PairingPairing {
		p.mu.Unlock()
		p.logger.Info("pairing abandoned after stop",
			zap.String("patient_id", patientID),
			zap.String("device_id", dev.ID),
		)
		return domain.Device{}, domain.ErrPairingCancelled
	}
	p.state = domain.PairingPaired
	p.device = &dev
	p.message = "Connected to " + dev.Name
	p.cancel = nil
	if p.cfg.Generator != nil {
		// 生成器生命周期跟随配对，而不是发起配对的请求
		p.handle = p.cfg.Generator.Start(context.WithoutCancel(ctx), patientID, dev)
	}
	p.mu.Unlock()

	p.logger.Info("device paired",
		zap.String("patient_id", patientID),
		zap.String("device_id", dev.ID),
		zap.String("device_name", dev.Name),
	)
	p.record(ctx, audit.Event{
		Action:  audit.ActionPairing,
		Role:    string(domain.RolePatient),
		Subject: patientID,
		Details: fmt.Sprintf("device=%s id=%s", dev.Name, dev.ID),
	})
	if p.cfg.OnConnected != nil {
		p.cfg.OnConnected(dev)
	}
	return dev, nil
}

// Cancel 取消进行中的设备选择
func (p *Pairer) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop 停止生成器并回到 Idle（视图卸载时调用）
func (p *Pairer) Stop() {
	p.mu.Lock()
	cancel, handle := p.cancel, p.handle
	p.cancel, p.handle = nil, nil
	p.epoch++
	p.state = domain.PairingIdle
	p.device = nil
	p.message = ""
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	handle.Stop()
	if p.cfg.Generator != nil {
		p.cfg.Generator.Trail().Reset()
	}
}

// Handle 当前生成器句柄（未配对为 nil）
func (p *Pairer) Handle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

func (p *Pairer) fail(ctx context.Context, epoch uint64, patientID, msg string, err error) {
	p.mu.Lock()
	if p.epoch != epoch {
		// 已被 Stop 重置，不覆盖新状态
		p.mu.Unlock()
		p.logger.Info("pairing stopped", zap.String("patient_id", patientID), zap.Error(err))
		return
	}
	p.state = domain.PairingIdle
	p.device = nil
	p.message = msg
	p.cancel = nil
	p.mu.Unlock()

	p.logger.Warn("pairing failed", zap.String("patient_id", patientID), zap.Error(err))
	p.record(ctx, audit.Event{
		Action:  audit.ActionPairingFault,
		Role:    string(domain.RolePatient),
		Subject: patientID,
		Details: err.Error(),
	})
}

func (p *Pairer) record(ctx context.Context, ev audit.Event) {
	if err := p.cfg.Audit.Record(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Warn("audit record failed", zap.String("action", string(ev.Action)), zap.Error(err))
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapabilityUnavailable):
		return "Bluetooth is not available on this platform"
	case errors.Is(err, domain.ErrPairingCancelled), errors.Is(err, context.Canceled):
		return "Pairing cancelled or no device selected"
	default:
		return "Failed to connect to device"
	}
}

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Action 审计动作
type Action string

const (
	ActionLogin        Action = "LOGIN"
	ActionLoginFailed  Action = "FAILED_LOGIN"
	ActionLogout       Action = "LOGOUT"
	ActionPairing      Action = "DEVICE_PAIRED"
	ActionPairingFault Action = "PAIRING_FAILED"
)

// Event 一条审计记录
type Event struct {
	Action  Action
	Role    string
	Subject string // 用户 ID / 角色 ID
	Details string
	At      time.Time
}

// Recorder 只写不读
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop 不记录
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// ZapRecorder 写入结构化日志
type ZapRecorder struct {
	logger *zap.Logger
}

func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger.Named("audit")}
}

func (r *ZapRecorder) Record(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.logger.Info("audit",
		zap.String("action", string(ev.Action)),
		zap.String("role", ev.Role),
		zap.String("subject", ev.Subject),
		zap.String("details", ev.Details),
		zap.Time("at", ev.At),
	)
	return nil
}

// PostgresRecorder 写入 dashboard_audit 表
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema 启动时建表（幂等）
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dashboard_audit (
			id         BIGSERIAL PRIMARY KEY,
			action     TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT '',
			subject    TEXT NOT NULL DEFAULT '',
			details    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create dashboard_audit: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	query := `
		INSERT INTO dashboard_audit (action, role, subject, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, string(ev.Action), ev.Role, ev.Subject, ev.Details, ev.At.UTC()); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Multi 依次写入多个 Recorder，返回第一个错误
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	var first error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

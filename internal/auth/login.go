package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"compliance-dashboard/internal/audit"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"

	"go.uber.org/zap"
)

// ValidationError 登录表单缺少必填字段
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// BuildLoginRequest 按角色只携带 patient_id 或 doctor_id 之一
// 只校验必填，不校验格式
func BuildLoginRequest(role domain.Role, id, name string) (domain.LoginRequest, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if !role.Valid() {
		return domain.LoginRequest{}, &ValidationError{Field: "user_type"}
	}
	if id == "" {
		if role == domain.RoleDoctor {
			return domain.LoginRequest{}, &ValidationError{Field: "doctor_id"}
		}
		return domain.LoginRequest{}, &ValidationError{Field: "patient_id"}
	}
	if name == "" {
		return domain.LoginRequest{}, &ValidationError{Field: "name"}
	}

	req := domain.LoginRequest{Name: name, UserType: role}
	switch role {
	case domain.RolePatient:
		req.PatientID = &id
	case domain.RoleDoctor:
		req.DoctorID = &id
	}
	return req, nil
}

// Backend 登录接口
type Backend interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)
}

// Flow 登录/登出流程，是会话状态的唯一写入方
type Flow struct {
	backend Backend
	store   session.Store   // BFF：按令牌保存
	holder  *session.Holder // TUI：进程内单会话
	audit   audit.Recorder
	logger  *zap.Logger

	mu       sync.Mutex
	teardown map[string][]func()
}

var _ session.Commands = (*Flow)(nil)

// Option Flow 可选项
type Option func(*Flow)

func WithStore(s session.Store) Option { return func(f *Flow) { f.store = s } }
func WithHolder(h *session.Holder) Option { return func(f *Flow) { f.holder = h } }
func WithAudit(r audit.Recorder) Option { return func(f *Flow) { f.audit = r } }

func NewFlow(backend Backend, logger *zap.Logger, opts ...Option) *Flow {
	f := &Flow{
		backend:  backend,
		audit:    audit.Nop{},
		logger:   logger,
		teardown: make(map[string][]func()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Login 只发送一次请求；失败时会话状态不变
func (f *Flow) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	resp, err := f.backend.Login(ctx, req)
	if err != nil {
		f.logger.Warn("login failed",
			zap.String("user_type", string(req.UserType)),
			zap.Error(err),
		)
		f.record(ctx, audit.Event{
			Action:  audit.ActionLoginFailed,
			Role:    string(req.UserType),
			Subject: roleID(req),
			Details: err.Error(),
		})
		return nil, err
	}

	sess := domain.NewSession(resp.Token, req, resp.User)
	if f.store != nil {
		if err := f.store.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
	}
	if f.holder != nil {
		f.holder.Set(sess)
	}

	f.logger.Info("login succeeded",
		zap.String("user_type", string(sess.Role)),
		zap.String("user_id", sess.SubjectID()),
	)
	f.record(ctx, audit.Event{
		Action:  audit.ActionLogin,
		Role:    string(sess.Role),
		Subject: sess.SubjectID(),
		Details: "name=" + sess.Name,
	})
	return sess, nil
}

// OnLogout 登出时执行的清理（停止生成器、提醒、实时订阅）
func (f *Flow) OnLogout(token string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardown[token] = append(f.teardown[token], fn)
}

// Forget 丢弃令牌的清理回调而不执行（会话已过期，视图已另行卸载）
func (f *Flow) Forget(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.teardown, token)
}

// Logout 清除会话并卸载视图；重复调用无副作用
func (f *Flow) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	fns := f.teardown[token]
	delete(f.teardown, token)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}

	var sess *domain.Session
	if f.store != nil {
		s, err := f.store.Get(ctx, token)
		if err != nil && !errors.Is(err, domain.ErrNotAuthenticated) {
			f.logger.Warn("load session on logout", zap.Error(err))
		}
		sess = s
		if err := f.store.Delete(ctx, token); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	if f.holder != nil {
		if cur, ok := f.holder.Current(); ok && sess == nil {
			sess = cur
		}
		f.holder.Clear()
	}

	if sess != nil {
		f.record(ctx, audit.Event{
			Action:  audit.ActionLogout,
			Role:    string(sess.Role),
			Subject: sess.SubjectID(),
			Details: "session ended",
		})
	}
	return nil
}

func (f *Flow) record(ctx context.Context, ev audit.Event) {
	if err := f.audit.Record(ctx, ev); err != nil {
		f.logger.Warn("audit record failed", zap.String("action", string(ev.Action)), zap.Error(err))
	}
}

func roleID(req domain.LoginRequest) string {
	if req.PatientID != nil {
		return *req.PatientID
	}
	if req.DoctorID != nil {
		return *req.DoctorID
	}
	return ""
}

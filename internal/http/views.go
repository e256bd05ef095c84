package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/view"

	"go.uber.org/zap"
)

// mountable 可挂载视图
type mountable interface {
	Mount(ctx context.Context) error
}

// logoutHook 登出时卸载视图（auth.Flow 实现）
type logoutHook interface {
	OnLogout(token string, fn func())
	Forget(token string)
}

// sessionLookup 会话查询（session.Store 实现）
type sessionLookup interface {
	Get(ctx context.Context, token string) (*domain.Session, error)
}

const sweepLookupTimeout = 5 * time.Second

// Views 每个会话令牌挂载一个视图；首次访问时懒加载
type Views struct {
	newPatient func(*domain.Session) (*view.PatientView, error)
	newDoctor  func(*domain.Session) (*view.DoctorView, error)
	hook       logoutHook
	logger     *zap.Logger

	mu       sync.Mutex
	patients map[string]*view.PatientView
	doctors  map[string]*view.DoctorView

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewViews(
	newPatient func(*domain.Session) (*view.PatientView, error),
	newDoctor func(*domain.Session) (*view.DoctorView, error),
	hook logoutHook,
	logger *zap.Logger,
) *Views {
	return &Views{
		newPatient: newPatient,
		newDoctor:  newDoctor,
		hook:       hook,
		logger:     logger,
		patients:   make(map[string]*view.PatientView),
		doctors:    make(map[string]*view.DoctorView),
		stop:       make(chan struct{}),
	}
}

// WatchExpiry 定期检查已挂载令牌，会话过期（未登出）的视图在此卸载；Close 时停止
func (v *Views) WatchExpiry(sessions sessionLookup, every time.Duration) {
	if sessions == nil || every <= 0 {
		return
	}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-v.stop:
				return
			case <-ticker.C:
				v.sweepExpired(sessions)
			}
		}
	}()
}

// sweepExpired 返回卸载的视图数；查询出错（如 Redis 不可用）时保留视图
func (v *Views) sweepExpired(sessions sessionLookup) int {
	n := 0
	for _, token := range v.tokens() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepLookupTimeout)
		_, err := sessions.Get(ctx, token)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotAuthenticated):
			v.Unmount(token)
			if v.hook != nil {
				v.hook.Forget(token)
			}
			n++
		default:
			v.logger.Warn("session lookup failed during sweep", zap.Error(err))
		}
	}
	if n > 0 {
		v.logger.Info("unmounted views of expired sessions", zap.Int("count", n))
	}
	return n
}

// Patient 获取或挂载患者视图
func (v *Views) Patient(ctx context.Context, sess *domain.Session) (*view.PatientView, error) {
	v.mu.Lock()
	pv, ok := v.patients[sess.Token]
	v.mu.Unlock()
	if ok {
		return pv, nil
	}

	pv, err := v.newPatient(sess)
	if err != nil {
		return nil, err
	}
	if err := mount(ctx, pv); err != nil {
		pv.Unmount()
		return nil, err
	}

	v.mu.Lock()
	if existing, ok := v.patients[sess.Token]; ok {
		v.mu.Unlock()
		pv.Unmount()
		return existing, nil
	}
	v.patients[sess.Token] = pv
	v.mu.Unlock()

	v.registerTeardown(sess.Token)
	return pv, nil
}

// Doctor 获取或挂载医生视图
func (v *Views) Doctor(ctx context.Context, sess *domain.Session) (*view.DoctorView, error) {
	v.mu.Lock()
	dv, ok := v.doctors[sess.Token]
	v.mu.Unlock()
	if ok {
		return dv, nil
	}

	dv, err := v.newDoctor(sess)
	if err != nil {
		return nil, err
	}
	if err := mount(ctx, dv); err != nil {
		return nil, err
	}

	v.mu.Lock()
	if existing, ok := v.doctors[sess.Token]; ok {
		v.mu.Unlock()
		return existing, nil
	}
	v.doctors[sess.Token] = dv
	v.mu.Unlock()

	v.registerTeardown(sess.Token)
	return dv, nil
}

// Mount 登录后按角色立即挂载
func (v *Views) Mount(ctx context.Context, sess *domain.Session) error {
	switch sess.Role {
	case domain.RolePatient:
		_, err := v.Patient(ctx, sess)
		return err
	case domain.RoleDoctor:
		_, err := v.Doctor(ctx, sess)
		return err
	default:
		return domain.ErrWrongRole
	}
}

// Unmount 卸载某个会话的视图
func (v *Views) Unmount(token string) {
	v.mu.Lock()
	pv := v.patients[token]
	delete(v.patients, token)
	delete(v.doctors, token)
	v.mu.Unlock()

	if pv != nil {
		pv.Unmount()
	}
}

// Close 停止过期检查并卸载全部视图；可重复调用
func (v *Views) Close() {
	v.stopOnce.Do(func() { close(v.stop) })
	v.wg.Wait()

	for _, t := range v.tokens() {
		v.Unmount(t)
	}
}

func (v *Views) tokens() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	tokens := make([]string, 0, len(v.patients)+len(v.doctors))
	for t := range v.patients {
		tokens = append(tokens, t)
	}
	for t := range v.doctors {
		tokens = append(tokens, t)
	}
	return tokens
}

// Mounted 当前挂载的视图数
func (v *Views) Mounted() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.patients) + len(v.doctors)
}

func (v *Views) registerTeardown(token string) {
	if v.hook == nil {
		return
	}
	v.hook.OnLogout(token, func() { v.Unmount(token) })
}

func mount(ctx context.Context, m mountable) error {
	// 挂载后的后台任务不随请求结束
	return m.Mount(context.WithoutCancel(ctx))
}

package session

import (
	"sync"

	"compliance-dashboard/internal/domain"
)

// Holder 当前进程的会话状态（TUI 单用户；BFF 每个 cookie 一个）
// 只能通过 Commands 写入
type Holder struct {
	mu      sync.RWMutex
	current *domain.Session
	nextID  int
	subs    map[int]func(*domain.Session)
}

// NewHolder 创建空会话
func NewHolder() *Holder {
	return &Holder{subs: make(map[int]func(*domain.Session))}
}

// Current 当前会话；未登录返回 false
func (h *Holder) Current() (*domain.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, false
	}
	cp := *h.current
	return &cp, true
}

// Set 替换当前会话并通知订阅者
func (h *Holder) Set(s *domain.Session) {
	h.mu.Lock()
	if s != nil {
		cp := *s
		s = &cp
	}
	h.current = s
	subs := h.snapshotSubs()
	h.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Clear 清空会话，订阅者收到 nil
func (h *Holder) Clear() {
	h.Set(nil)
}

// Subscribe 身份变化回调，返回取消函数
func (h *Holder) Subscribe(fn func(*domain.Session)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Holder) snapshotSubs() []func(*domain.Session) {
	out := make([]func(*domain.Session), 0, len(h.subs))
	for _, fn := range h.subs {
		out = append(out, fn)
	}
	return out
}

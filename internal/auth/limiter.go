package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 按客户端限制登录频率（令牌桶）
type Limiter struct {
	perMin int
	burst  int

	mu      sync.Mutex
	clients map[string]*limitedClient
	now     func() time.Time
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter perMin<=0 表示不限制
func NewLimiter(perMin, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perMin:  perMin,
		burst:   burst,
		clients: make(map[string]*limitedClient),
		now:     time.Now,
	}
}

// Allow 当前客户端是否还能尝试登录
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(rate.Limit(l.perMin)/60.0, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = l.now()
	lim := c.limiter
	l.mu.Unlock()
	return lim.Allow()
}

// Run 定期清理长时间未出现的客户端，直到 ctx 结束
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(3 * time.Minute)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > idle {
			delete(l.clients, key)
		}
	}
}

// ClientKey 直连地址（去掉端口），不信任代理头
func ClientKey(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return addr
}

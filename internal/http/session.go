package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"
)

// CookieConfig 会话 cookie
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// sessionResolver 从 cookie 或 Bearer 头取会话
type sessionResolver struct {
	store  session.Store
	cookie CookieConfig
}

func (s sessionResolver) token(r *http.Request) string {
	if c, err := r.Cookie(s.cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (s sessionResolver) resolve(ctx context.Context, r *http.Request) (*domain.Session, error) {
	return s.store.Get(ctx, s.token(r))
}

func (s sessionResolver) require(ctx context.Context, r *http.Request, role domain.Role) (*domain.Session, error) {
	sess, err := s.resolve(ctx, r)
	if err != nil {
		return nil, err
	}
	if sess.Role != role {
		return nil, domain.ErrWrongRole
	}
	return sess, nil
}

func (s sessionResolver) setCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookie.TTL > 0 {
		c.MaxAge = int(s.cookie.TTL.Seconds())
	}
	http.SetCookie(w, c)
}

func (s sessionResolver) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		MaxAge:   -1,
	})
}

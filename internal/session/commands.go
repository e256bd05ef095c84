package session

import (
	"context"

	"compliance-dashboard/internal/domain"
)

// Commands 会话唯一的写入方（登录流程实现）
type Commands interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error)
	Logout(ctx context.Context, token string) error
}

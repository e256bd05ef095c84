package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"compliance-dashboard/internal/config"

	_ "github.com/lib/pq"
)

// 审计表每个事件一行，连接池保持小而短命
const (
	defaultMaxConns        = 4
	defaultMaxIdle         = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// OpenAudit 打开审计库并确认可达；失败时连接已关闭
func OpenAudit(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := ready(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ready(ctx context.Context, db *sql.DB, cfg *config.DatabaseConfig) error {
	applyPool(db, cfg)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		return fmt.Errorf("failed to ping audit database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return nil
}

func applyPool(db *sql.DB, cfg *config.DatabaseConfig) {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	if maxIdle > maxConns {
		maxIdle = maxConns
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
}

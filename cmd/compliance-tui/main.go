package main

import (
	"context"
	"fmt"
	"os"

	"compliance-dashboard/internal/app"
	"compliance-dashboard/internal/auth"
	"compliance-dashboard/internal/config"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/logger"
	"compliance-dashboard/internal/session"
	"compliance-dashboard/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 终端被界面占用，日志写文件
	log, err := logger.NewFileLogger(cfg.Log.Level, cfg.Log.File, "compliance-tui")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	holder := session.NewHolder()
	cancel := holder.Subscribe(func(s *domain.Session) {
		if s == nil {
			log.Info("session cleared")
			return
		}
		log.Info("session established", zap.String("role", string(s.Role)), zap.String("user_id", s.UserID))
	})
	defer cancel()

	flow := auth.NewFlow(a.Backend, log, auth.WithStore(a.Sessions), auth.WithHolder(holder), auth.WithAudit(a.Audit))

	wd, _ := os.Getwd()
	model := tui.NewModel(tui.Deps{
		Commands:   flow,
		NewPatient: a.NewPatientView,
		NewDoctor:  a.NewDoctorView,
		ExportDir:  wd,
		Logger:     log,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.SetProgramSender(func(msg tea.Msg) { p.Send(msg) })

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal dashboard: %w", err)
	}

	// 退出时仍在登录状态则登出，记录审计
	if s, ok := holder.Current(); ok {
		if err := flow.Logout(ctx, s.Token); err != nil {
			log.Warn("logout on exit failed", zap.Error(err))
		}
	}
	return nil
}

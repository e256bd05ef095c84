package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliance-dashboard/internal/app"
	"compliance-dashboard/internal/auth"
	"compliance-dashboard/internal/config"
	httpapi "compliance-dashboard/internal/http"
	"compliance-dashboard/internal/logger"
	"compliance-dashboard/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "compliance-dashboard")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	flow := auth.NewFlow(a.Backend, log, auth.WithStore(a.Sessions), auth.WithAudit(a.Audit))
	limiter := auth.NewLimiter(cfg.Login.RatePerMin, cfg.Login.Burst)
	go limiter.Run(ctx)

	views := httpapi.NewViews(a.NewPatientView, a.NewDoctorView, flow, log)
	views.WatchExpiry(a.Sessions, cfg.Session.SweepInterval)
	defer views.Close()

	cookie := httpapi.CookieConfig{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.TTL,
		Secure: cfg.HTTP.CookieSecure,
	}

	health := httpapi.NewHealthHandler(a.DB, a.Redis, brokerStatus(a), views, log)
	health.EnablePprof(cfg.HTTP.PprofEnabled)

	router := httpapi.NewRouter(log)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(flow, a.Sessions, cookie, views, limiter, log))
	router.RegisterPatientRoutes(httpapi.NewPatientHandler(a.Sessions, cookie, views, log))
	router.RegisterDoctorRoutes(httpapi.NewDoctorHandler(a.Sessions, cookie, views, log))
	router.RegisterRealtimeRoutes(httpapi.NewStreamHandler(a.Sessions, cookie, views, cfg.HTTP.AllowedOrigins, log))
	router.RegisterHealthRoutes(health)

	log.Info("compliance-dashboard configured",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("session_store", cfg.Session.Store),
		zap.String("device_mode", cfg.Device.Mode),
		zap.String("notifier", cfg.Reminder.Notifier),
		zap.Bool("realtime", cfg.Realtime.Enabled),
	)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// brokerStatus MQTT 未配置时返回 nil 接口
func brokerStatus(a *app.App) interface{ IsConnected() bool } {
	if a.MQTT == nil {
		return nil
	}
	return a.MQTT
}

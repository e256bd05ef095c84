package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"compliance-dashboard/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// 熔断默认参数
const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// APIError 后端返回非 2xx
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Options 客户端参数
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int // 只读 GET 的重试次数；登录/遥测永不重试
}

// Client 合规后端 REST 客户端
type Client struct {
	baseURL string
	read    *resty.Client
	write   *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	logger  *zap.Logger
}

// NewClient 创建后端客户端
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	read := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	write := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	cb := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "compliance-backend",
		MaxRequests: 1,
		Interval:    defaultBreakerInterval,
		Timeout:     defaultBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultBreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// 4xx 是业务拒绝，不计入熔断
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return err == nil
		},
	})

	return &Client{
		baseURL: opts.BaseURL,
		read:    read,
		write:   write,
		breaker: cb,
		logger:  logger,
	}
}

// BaseURL 后端地址
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, rc *resty.Client, method, path string, body, out any) error {
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := rc.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return resp, err
		}
		if resp.IsError() {
			return resp, &APIError{Method: method, Path: path, Status: resp.StatusCode(), Body: resp.String()}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("backend circuit open: %w", err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	if out == nil {
		return nil
	}
	// 后端不一定带 application/json，按响应体解码
	raw := bytes.TrimSpace(resp.Body())
	if len(raw) == 0 {
		return fmt.Errorf("backend %s %s: empty response body", method, path)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// Login POST /auth/login
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	var resp domain.LoginResponse
	if err := c.do(ctx, c.write, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.User == nil {
		return nil, domain.ErrLoginRejected
	}
	return &resp, nil
}

// RegisterDevice POST /patients/{id}/devices
func (c *Client) RegisterDevice(ctx context.Context, patientID string, device domain.Device) (*domain.DeviceRecord, error) {
	var rec domain.DeviceRecord
	path := "/patients/" + url.PathEscape(patientID) + "/devices"
	if err := c.do(ctx, c.write, http.MethodPost, path, device, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDevices GET /patients/{id}/devices
func (c *Client) ListDevices(ctx context.Context, patientID string) ([]domain.DeviceRecord, error) {
	var out []domain.DeviceRecord
	path := "/patients/" + url.PathEscape(patientID) + "/devices"
	if err := c.do(ctx, c.read, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendTelemetry POST /bluetooth/data
func (c *Client) SendTelemetry(ctx context.Context, sample domain.TelemetrySample) error {
	var ack domain.TelemetryAck
	if err := c.do(ctx, c.write, http.MethodPost, "/bluetooth/data", sample, &ack); err != nil {
		return err
	}
	return nil
}

// GetUsage GET /patients/{id}/usage?days=N
func (c *Client) GetUsage(ctx context.Context, patientID string, days int) ([]domain.UsageSession, error) {
	var out []domain.UsageSession
	path := "/patients/" + url.PathEscape(patientID) + "/usage" + daysQuery(days)
	if err := c.do(ctx, c.read, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCompliance GET /patients/{id}/compliance
func (c *Client) GetCompliance(ctx context.Context, patientID string) (*domain.ComplianceSummary, error) {
	var out domain.ComplianceSummary
	path := "/patients/" + url.PathEscape(patientID) + "/compliance"
	if err := c.do(ctx, c.read, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAnalytics GET /patients/{id}/analytics?days=N
func (c *Client) GetAnalytics(ctx context.Context, patientID string, days int) (*domain.Analytics, error) {
	var out domain.Analytics
	path := "/patients/" + url.PathEscape(patientID) + "/analytics" + daysQuery(days)
	if err := c.do(ctx, c.read, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDoctorPatients GET /doctors/{id}/patients
func (c *Client) GetDoctorPatients(ctx context.Context, doctorID string) ([]domain.PatientComplianceRow, error) {
	var out []domain.PatientComplianceRow
	path := "/doctors/" + url.PathEscape(doctorID) + "/patients"
	if err := c.do(ctx, c.read, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDoctorDashboard GET /doctors/{id}/dashboard
func (c *Client) GetDoctorDashboard(ctx context.Context, doctorID string) (*domain.DoctorDashboard, error) {
	var out domain.DoctorDashboard
	path := "/doctors/" + url.PathEscape(doctorID) + "/dashboard"
	if err := c.do(ctx, c.read, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func daysQuery(days int) string {
	if days <= 0 {
		return ""
	}
	return "?days=" + strconv.Itoa(days)
}

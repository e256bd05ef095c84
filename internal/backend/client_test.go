package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"compliance-dashboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second, RetryCount: 2}, zap.NewNop())
	return c, srv
}

func TestLogin_SendsExactlyOneRoleID(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"token":"user_u1","user":{"id":"u1","name":"Alice","user_type":"patient","patient_id":"P1","created_at":"2024-03-01T08:30:00.123456"}}`))
	}))

	pid := "P1"
	resp, err := c.Login(context.Background(), domain.LoginRequest{Name: "Alice", UserType: domain.RolePatient, PatientID: &pid})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "user_u1", resp.Token)

	assert.Equal(t, map[string]any{"name": "Alice", "user_type": "patient", "patient_id": "P1"}, body)
}

func TestLogin_RejectedWhenSuccessFalse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	}))

	did := "D1"
	_, err := c.Login(context.Background(), domain.LoginRequest{Name: "Bob", UserType: domain.RoleDoctor, DoctorID: &did})
	assert.ErrorIs(t, err, domain.ErrLoginRejected)
}

func TestLogin_NotRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	pid := "P1"
	_, err := c.Login(context.Background(), domain.LoginRequest{Name: "Alice", UserType: domain.RolePatient, PatientID: &pid})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendTelemetry_PostsSample(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bluetooth/data", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	err := c.SendTelemetry(context.Background(), domain.TelemetrySample{
		PatientID: "u1", DeviceID: "dev-1", UsageDuration: 120, TimeOfDay: domain.Day, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", got["patient_id"])
	assert.Equal(t, "dev-1", got["device_id"])
	assert.Equal(t, float64(120), got["usage_duration"])
	assert.Equal(t, "day", got["time_of_day"])
}

func TestGetters_DecodePayloads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/patients/u1/usage", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`[{"id":"s1","patient_id":"u1","device_id":"d1","start_time":"2024-03-01T06:30:00","duration_minutes":120,"time_of_day":"night","created_at":"2024-03-01T08:30:00"}]`))
	})
	mux.HandleFunc("/api/patients/u1/compliance", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"patient_id":"u1","patient_name":"Alice","total_sessions":1,"compliance_percentage":0.83,"device_connected":true,"usage_trend":{"direction":"increasing","percentage":100}}`))
	})
	mux.HandleFunc("/api/patients/u1/analytics", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"time_series":[{"date":"2024-03-01","usage_minutes":120,"usage_hours":2}],"day_night_distribution":{"day":120,"night":60},"active_days":1}`))
	})
	mux.HandleFunc("/api/patients/u1/devices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"r1","patient_id":"u1","device_name":"ESP32-01","device_id":"d1","is_connected":true,"created_at":"2024-03-01T08:30:00"}]`))
	})
	mux.HandleFunc("/api/doctors/d1/patients", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"patient_id":"u1","patient_name":"Alice","compliance_percentage":55}]`))
	})
	mux.HandleFunc("/api/doctors/d1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_patients":3,"active_today":1,"alerts":[{"patient_id":"u1","patient_name":"Alice","severity":"high","message":"No usage in 3 days"}]}`))
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	usage, err := c.GetUsage(ctx, "u1", 7)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, domain.Night, usage[0].TimeOfDay)
	assert.Equal(t, 120, *usage[0].DurationMinutes)

	comp, err := c.GetCompliance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "increasing", comp.UsageTrend.Direction)

	an, err := c.GetAnalytics(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 120.0, an.DayNightDistribution.Day)

	devices, err := c.ListDevices(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ESP32-01", devices[0].DeviceName)

	rows, err := c.GetDoctorPatients(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 55.0, rows[0].CompliancePercentage)

	dash, err := c.GetDoctorDashboard(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, dash.TotalPatients)
	assert.Equal(t, domain.SeverityHigh, dash.Alerts[0].Severity)
}

func TestRegisterDevice(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/patients/u1/devices", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"ESP32-01","id":"dev-1"}`, string(raw))
		_, _ = w.Write([]byte(`{"id":"r1","patient_id":"u1","device_name":"ESP32-01","device_id":"dev-1","is_connected":true}`))
	}))

	rec, err := c.RegisterDevice(context.Background(), "u1", domain.Device{Name: "ESP32-01", ID: "dev-1"})
	require.NoError(t, err)
	assert.True(t, rec.IsConnected)
}

func TestDecodesBodyRegardlessOfContentType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"success":true,"token":"user_u1","user":{"id":"u1","name":"Alice","user_type":"patient"}}`))
	})
	mux.HandleFunc("/api/patients/u1/compliance", func(w http.ResponseWriter, r *http.Request) {
		// net/http 会嗅探成 text/plain
		_, _ = w.Write([]byte(`{"patient_id":"u1","patient_name":"Alice","compliance_percentage":92}`))
	})
	mux.HandleFunc("/api/patients/u2/compliance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})
	mux.HandleFunc("/api/patients/u3/compliance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	pid := "P1"
	resp, err := c.Login(ctx, domain.LoginRequest{Name: "Alice", UserType: domain.RolePatient, PatientID: &pid})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.User.ID)

	comp, err := c.GetCompliance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 92.0, comp.CompliancePercentage)

	_, err = c.GetCompliance(ctx, "u2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")

	_, err = c.GetCompliance(ctx, "u3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response body")
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())

	for i := 0; i < int(defaultBreakerMaxFailures); i++ {
		_, err := c.GetCompliance(context.Background(), "u1")
		require.Error(t, err)
	}
	before := atomic.LoadInt32(&calls)

	_, err := c.GetCompliance(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit open"), err.Error())
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open circuit must not reach backend")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Patient not found"}`))
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())

	for i := 0; i < int(defaultBreakerMaxFailures)+2; i++ {
		_, err := c.GetCompliance(context.Background(), "missing")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "attempt %d: %v", i, err)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
	}
}

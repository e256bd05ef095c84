package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"compliance-dashboard/internal/auth"
	"compliance-dashboard/internal/backend"
	"compliance-dashboard/internal/device"
	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"
	"compliance-dashboard/internal/view"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// fakeComplianceBackend 模拟外部合规后端
type fakeComplianceBackend struct {
	mu        sync.Mutex
	logins    []map[string]any
	telemetry int
	devices   int
}

func (f *fakeComplianceBackend) loginBodies() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.logins...)
}

func (f *fakeComplianceBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.logins = append(f.logins, body)
		f.mu.Unlock()
		if body["name"] == "Mallory" {
			_, _ = w.Write([]byte(`{"success":false}`))
			return
		}
		role := body["user_type"]
		_, _ = w.Write([]byte(`{"success":true,"token":"user_u1","user":{"id":"u1","name":"` + body["name"].(string) + `","user_type":"` + role.(string) + `"}}`))
	})
	mux.HandleFunc("/api/patients/u1/usage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/patients/u1/compliance", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"patient_id":"u1","patient_name":"Alice","compliance_percentage":45}`))
	})
	mux.HandleFunc("/api/patients/u1/analytics", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"time_series":[],"day_night_distribution":{"day":120,"night":60}}`))
	})
	mux.HandleFunc("/api/patients/u1/devices", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodGet {
			if f.devices == 0 {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"r1","patient_id":"u1","device_name":"ESP32-1","device_id":"d","is_connected":true}]`))
			return
		}
		f.devices++
		_, _ = w.Write([]byte(`{"id":"r1","patient_id":"u1","device_name":"ESP32-1","device_id":"d","is_connected":true}`))
	})
	mux.HandleFunc("/api/bluetooth/data", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.telemetry++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/api/doctors/u1/patients", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"patient_id":"p1","patient_name":"Alice","compliance_percentage":45}]`))
	})
	mux.HandleFunc("/api/doctors/u1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_patients":1,"active_today":0,"alerts":[{"patient_id":"p1","patient_name":"Alice","message":"inactive"}]}`))
	})
	return mux
}

type testEnv struct {
	server  *httptest.Server
	fake    *fakeComplianceBackend
	views   *Views
	store   session.Store
	limiter *auth.Limiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, session.NewMemoryStore(time.Hour))
}

func newTestEnvWithStore(t *testing.T, store session.Store) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	fake := &fakeComplianceBackend{}
	backendSrv := httptest.NewServer(fake.handler())
	t.Cleanup(backendSrv.Close)

	client := backend.NewClient(backend.Options{BaseURL: backendSrv.URL + "/api", Timeout: 2 * time.Second}, logger)
	flow := auth.NewFlow(client, logger, auth.WithStore(store))

	views := NewViews(
		func(s *domain.Session) (*view.PatientView, error) {
			return view.NewPatientView(s, view.PatientDeps{
				Backend:    client,
				Discoverer: device.SyntheticDiscoverer{},
				Filter:     device.Filter{NamePrefixes: []string{"ESP32"}},
				Source:     device.NewSyntheticSource(10 * time.Millisecond),
				Logger:     logger,
			})
		},
		func(s *domain.Session) (*view.DoctorView, error) {
			return view.NewDoctorView(s, client, logger)
		},
		flow,
		logger,
	)
	t.Cleanup(views.Close)

	cookie := CookieConfig{Name: "cd_session", TTL: time.Hour}
	limiter := auth.NewLimiter(60, 3)
	router := NewRouter(logger)
	router.RegisterAuthRoutes(NewAuthHandler(flow, store, cookie, views, limiter, logger))
	router.RegisterPatientRoutes(NewPatientHandler(store, cookie, views, logger))
	router.RegisterDoctorRoutes(NewDoctorHandler(store, cookie, views, logger))
	router.RegisterRealtimeRoutes(NewStreamHandler(store, cookie, views, nil, logger))
	router.RegisterHealthRoutes(NewHealthHandler(nil, nil, nil, views, logger))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, fake: fake, views: views, store: store, limiter: limiter}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "cd_session" {
			return c
		}
	}
	return nil
}

func TestPatientFlow_LoginViewPairLogout(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "patient", "id": "P1", "name": "Alice",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(ResultSuccess), body["code"])
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)

	// 后端只收到 patient_id
	logins := env.fake.loginBodies()
	require.Len(t, logins, 1)
	assert.Equal(t, map[string]any{"name": "Alice", "user_type": "patient", "patient_id": "P1"}, logins[0])
	assert.Equal(t, 1, env.views.Mounted())

	resp, body = env.do(t, http.MethodGet, "/api/v1/patient/view", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	comp := result["compliance"].(map[string]any)
	assert.Equal(t, "attention", comp["class"])
	assert.Equal(t, true, comp["needs_attention"])
	pie := result["day_night_chart"].(map[string]any)
	ds := pie["data"].(map[string]any)["datasets"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{2.0, 1.0}, ds["data"])
	assert.Equal(t, true, result["usage_chart"].(map[string]any)["placeholder"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/patient/pair", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	pairing := body["result"].(map[string]any)["pairing"].(map[string]any)
	assert.Equal(t, "paired", pairing["state"])
	assert.Len(t, body["result"].(map[string]any)["devices"], 1)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/patient/pair", nil, cookie)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Eventually(t, func() bool {
		env.fake.mu.Lock()
		defer env.fake.mu.Unlock()
		return env.fake.telemetry >= 2
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/doctor/view", nil, cookie)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, env.views.Mounted())

	env.fake.mu.Lock()
	sent := env.fake.telemetry
	env.fake.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	env.fake.mu.Lock()
	assert.Equal(t, sent, env.fake.telemetry, "generator stopped at logout")
	env.fake.mu.Unlock()

	resp, body = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, float64(ResultNotAuthenticated), body["code"])
}

func (e *testEnv) telemetryCount() int {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	return e.fake.telemetry
}

func TestViews_ExpiredSessionIsUnmounted(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	env := newTestEnvWithStore(t, session.NewRedisStore(rdb, time.Minute))
	env.views.WatchExpiry(env.store, 10*time.Millisecond)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "patient", "id": "P1", "name": "Alice",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)

	resp, body = env.do(t, http.MethodPost, "/api/v1/patient/pair", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Eventually(t, func() bool { return env.telemetryCount() >= 2 }, 2*time.Second, 10*time.Millisecond)

	// 会话仍有效时保持挂载
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, env.views.Mounted())

	mr.FastForward(2 * time.Minute)
	require.Eventually(t, func() bool { return env.views.Mounted() == 0 }, 2*time.Second, 10*time.Millisecond)

	sent := env.telemetryCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sent, env.telemetryCount(), "generator stopped with the expired session")

	resp, _ = env.do(t, http.MethodGet, "/api/v1/patient/view", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.views.Mounted())
}

type failingLookup struct{}

func (failingLookup) Get(context.Context, string) (*domain.Session, error) {
	return nil, errors.New("redis: connection refused")
}

func TestViews_SweepKeepsViewsWhenStoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "doctor", "id": "D1", "name": "Bob",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, env.views.Mounted())

	assert.Zero(t, env.views.sweepExpired(failingLookup{}))
	assert.Equal(t, 1, env.views.Mounted())

	require.NoError(t, env.store.Delete(context.Background(), sessionCookie(resp).Value))
	assert.Equal(t, 1, env.views.sweepExpired(env.store))
	assert.Equal(t, 0, env.views.Mounted())
}

func TestViews_CloseStopsSweep(t *testing.T) {
	v := NewViews(nil, nil, nil, zap.NewNop())
	v.WatchExpiry(failingLookup{}, time.Millisecond)

	done := make(chan struct{})
	go func() {
		v.Close()
		v.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the sweep")
	}
}

func TestLogin_RejectedAndValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "doctor", "id": "D1", "name": "Mallory",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "error", body["type"])
	assert.Nil(t, sessionCookie(resp))
	assert.Equal(t, 0, env.views.Mounted())

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "doctor", "name": "Bob",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "doctor_id is required", body["message"])
	// 校验失败不访问后端
	assert.Len(t, env.fake.loginBodies(), 1)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/auth/login", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	form := map[string]string{"user_type": "patient", "id": "P1", "name": "Mallory"}
	for i := 0; i < 3; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", form, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", form, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestDoctorFlow_ViewAndExport(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "doctor", "id": "D1", "name": "Dr. Who",
	}, nil)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)

	resp, body := env.do(t, http.MethodGet, "/api/v1/doctor/view", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	alerts := result["alerts"].([]any)
	require.Len(t, alerts, 1)
	badge := alerts[0].(map[string]any)["badge"].(map[string]any)
	assert.Equal(t, "medium", badge["severity"])
	patients := result["patients"].([]any)
	assert.Equal(t, true, patients[0].(map[string]any)["needs_attention"])

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/doctor/patients/export", nil)
	req.AddCookie(cookie)
	xresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer xresp.Body.Close()
	assert.Equal(t, http.StatusOK, xresp.StatusCode)
	assert.Contains(t, xresp.Header.Get("Content-Disposition"), ".xlsx")
	data, _ := io.ReadAll(xresp.Body)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx is a zip archive")

	resp, _ = env.do(t, http.MethodGet, "/api/v1/patient/view", nil, cookie)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStream_SendsSnapshotFirst(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"user_type": "patient", "id": "P1", "name": "Alice",
	}, nil)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/ws"
	header := http.Header{}
	header.Set("Cookie", cookie.String())
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "snapshot", msg["type"])
	assert.Equal(t, "Alice", msg["data"].(map[string]any)["name"])

	_, _ = env.do(t, http.MethodPost, "/api/v1/patient/refresh", nil, cookie)
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "refreshed", msg["type"])
}

func TestStream_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, float64(ResultNotAuthenticated), body["code"])
}

func TestHealth_NotConfiguredIsHealthy(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = env.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ready"])
}

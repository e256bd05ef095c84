package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"compliance-dashboard/internal/auth"
	"compliance-dashboard/internal/backend"
	"compliance-dashboard/internal/domain"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// writeError 错误映射到 HTTP 状态码和 Fail 包装
func writeError(w http.ResponseWriter, err error) {
	var verr *auth.ValidationError
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, NotAuthenticated())
	case errors.Is(err, domain.ErrWrongRole):
		writeJSON(w, http.StatusForbidden, Fail("this view is not available for your role"))
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, Fail(verr.Error()))
	case errors.Is(err, domain.ErrLoginRejected):
		writeJSON(w, http.StatusUnauthorized, Fail("Login failed. Please check your credentials."))
	case errors.Is(err, domain.ErrAlreadyPairing):
		writeJSON(w, http.StatusConflict, Fail("pairing already in progress or device already paired"))
	case errors.Is(err, domain.ErrCapabilityUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, Fail("Bluetooth is not available on this platform"))
	case errors.Is(err, domain.ErrPairingCancelled):
		writeJSON(w, http.StatusConflict, Fail("Pairing cancelled or no device selected"))
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, Fail("backend request failed"))
	default:
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
	}
}

// allow 方法不匹配时返回 405
func allow(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	SoftwareID int64  `json:"software_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID      string             `json:"user_id"`
	SoftwareID  int64              `json:"software_id"`
	WorkspaceID string             `json:"workspace_id,omitempty"`
	TenantID    string             `json:"tenant_id,omitempty"`
	BranchID    string             `json:"branch_id,omitempty"`
	EmployeeID  string             `json:"employee_id,omitempty"`
	Permissions []string           `json:"permissions,omitempty"`
	Workspaces  []WorkspaceSummary `json:"workspaces,omitempty"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" || body.SoftwareID <= 0 {
		writeError(w, http.StatusBadRequest, "username, password and software_id are required")
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Username, body.Password, body.SoftwareID)
	if err != nil {
		writeAuthError(w, err, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body refreshRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeAuthError(w, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body logoutRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		writeAuthError(w, err, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me echoes the verified access-token claims. It must sit behind Middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	resp := meResponse{
		UserID:      claims.UserID,
		SoftwareID:  claims.SoftwareID,
		WorkspaceID: claims.WorkspaceID,
		TenantID:    claims.TenantID,
		BranchID:    claims.BranchID,
		EmployeeID:  claims.EmployeeID,
		Permissions: claims.Permissions,
		Workspaces:  claims.Workspaces,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeAuthError(w http.ResponseWriter, err error, fallback string) {
	var locked ErrAccountLocked
	switch KindOf(err) {
	case KindInvalidCredentials:
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case KindAccountLocked:
		errors.As(err, &locked)
		retryAfter := int(time.Until(locked.Until).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "account temporarily locked")
	case KindNoActiveWorkspace:
		writeError(w, http.StatusForbidden, "no active workspace")
	case KindInvalidRefreshToken:
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	case KindExpiredRefreshToken:
		writeError(w, http.StatusUnauthorized, "refresh token expired")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

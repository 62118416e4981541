package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"alertrelay.io/relay/internal/api/handlers"
	"alertrelay.io/relay/internal/api/middleware"
	"alertrelay.io/relay/internal/domain"
	"alertrelay.io/relay/internal/lifecycle"
	"alertrelay.io/relay/internal/pkg/logger"
	"alertrelay.io/relay/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

var routerNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const adminPassword = "relay-admin-password"

func newTestRouter(t *testing.T) (*gin.Engine, *repository.Memory) {
	t.Helper()

	mem := repository.NewMemory()
	mem.Now = func() time.Time { return routerNow }

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "alert-relay",
		ExpiresIn:  time.Hour,
	}
	server := handlers.NewServer(handlers.ServerDeps{
		Store:             mem,
		Engine:            lifecycle.NewEngine(mem),
		JWTCfg:            jwtCfg,
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
	})
	return newRouter(server, jwtCfg.SigningKey), mem
}

func seedSent(mem *repository.Memory, id string) {
	expires := routerNow.Add(time.Hour)
	mem.Put(&domain.Notification{
		ID:             id,
		AlertID:        "alert-1",
		Subject:        "disk usage above threshold",
		Channel:        domain.ChannelEmail,
		State:          domain.StateSent,
		ActionToken:    "tok-" + id,
		TokenExpiresAt: &expires,
		CreatedAt:      routerNow.Add(-time.Hour),
	})
}

func do(r *gin.Engine, method, path, token string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestActionGatewayReceived(t *testing.T) {
	r, mem := newTestRouter(t)
	seedSent(mem, "n1")

	w := do(r, http.MethodGet, "/notifications/n1/received?token=tok-n1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Equal(t, domain.StateReceived, mem.Get("n1").State)
}

func TestActionGatewayMissingToken(t *testing.T) {
	r, mem := newTestRouter(t)
	seedSent(mem, "n1")

	w := do(r, http.MethodGet, "/notifications/n1/received", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")
	assert.Equal(t, domain.StateSent, mem.Get("n1").State)
}

func TestActionGatewayInvalidToken(t *testing.T) {
	r, mem := newTestRouter(t)
	seedSent(mem, "n1")

	w := do(r, http.MethodGet, "/notifications/n1/cancel?token=wrong", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired token")
}

func TestActionGatewayBrowserGetsHTML(t *testing.T) {
	r, mem := newTestRouter(t)
	seedSent(mem, "n1")

	req := httptest.NewRequest(http.MethodGet, "/notifications/n1/resolved?token=tok-n1", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Action completed")
	assert.Equal(t, domain.StateResolved, mem.Get("n1").State)
}

func TestNotificationStatus(t *testing.T) {
	r, mem := newTestRouter(t)
	seedSent(mem, "n1")

	w := do(r, http.MethodGet, "/notifications/n1/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "sent", got["state"])
	assert.NotContains(t, w.Body.String(), "tok-n1", "action token never leaves the server")

	w = do(r, http.MethodGet, "/notifications/missing/status", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRequiresJWT(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/admin/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func loginToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/auth/login", "", `{"username":"admin","password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/auth/login", "", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/auth/login", "", `{"username":"someone","password":"`+adminPassword+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminCreateStatsDelete(t *testing.T) {
	r, mem := newTestRouter(t)
	token := loginToken(t, r)

	w := do(r, http.MethodPost, "/api/v1/admin/notifications", token,
		`{"subject":"disk usage above threshold","recipients":"ops@example.com","alert_id":"alert-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatePending, mem.Get(created.ID).State)

	w = do(r, http.MethodGet, "/api/v1/admin/stats", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Total   int64            `json:"total"`
		ByState map[string]int64 `json:"by_state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByState["pending"])

	w = do(r, http.MethodDelete, "/api/v1/admin/notifications/"+created.ID, token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, mem.Get(created.ID))

	w = do(r, http.MethodDelete, "/api/v1/admin/notifications/"+created.ID, token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCreateValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	token := loginToken(t, r)

	cases := map[string]string{
		"missing subject":    `{"recipients":"ops@example.com"}`,
		"invalid channel":    `{"subject":"s","recipients":"ops@example.com","channel":"pager"}`,
		"missing recipients": `{"subject":"s"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/admin/notifications", token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickshare/service/internal/files"
	"github.com/quickshare/service/internal/settings"
	"github.com/quickshare/service/internal/share"
	"github.com/quickshare/service/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router   http.Handler
	settings *settings.Manager
	files    *files.Service
	clock    *testclock.Clock
	tempDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	clk := testclock.NewClock(time.Now().Truncate(time.Second))
	registry := storage.NewRegistry(local, 0)
	mgr := settings.NewManager(settings.NewMemoryRepository(), registry, clk)
	svc := files.NewService(share.NewMemoryStore(), mgr, registry, clk)
	h := NewHandler(NewAuthenticator("pw", "secret", time.Hour, clk), mgr, registry, svc)

	r := chi.NewRouter()
	r.Post("/api/admin/login", h.Login)
	r.Get("/api/admin/settings", h.GetSettings)
	r.Put("/api/admin/settings", h.UpdateSettings)
	r.Post("/api/admin/settings/test", h.TestConnection)
	r.Get("/api/admin/files", h.ListFiles)
	r.Get("/api/admin/stats", h.Stats)
	r.Post("/api/admin/cleanup", h.Cleanup)
	r.Post("/api/admin/reclaim", h.Reclaim)

	return &fixture{router: r, settings: mgr, files: svc, clock: clk, tempDir: t.TempDir()}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (f *fixture) upload(t *testing.T, name, content string) *files.UploadResult {
	t.Helper()
	p := filepath.Join(f.tempDir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	res, err := f.files.Upload(context.Background(), files.UploadInput{TempPath: p, OriginalName: name, Size: int64(len(content))})
	require.NoError(t, err)
	return res
}

func TestHandler_Login(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodPost, "/api/admin/login", `{"password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var tok Token
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	assert.NotEmpty(t, tok.Token)

	w, _ = f.do(t, http.MethodPost, "/api/admin/login", `{"password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/admin/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetSettingsDefaults(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/admin/settings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var data settingsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, storage.BackendLocal, data.Settings.ActiveBackend)
	assert.Equal(t, settings.DefaultExpireDays, data.Settings.DefaultExpireDays)
	assert.Len(t, data.Backends, 6)
}

func TestHandler_UpdateSettings(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "should save complete credentials",
			body:       `{"activeBackend":"tencent","backends":{"tencent":{"accessKeyId":"ak","accessKeySecret":"sk","bucket":"b-1250000000","region":"ap-guangzhou"}},"defaultExpireDays":3,"maxFileSizeMB":50,"uploadRateLimit":5,"downloadRateLimit":10}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "should reject incomplete active credentials",
			body:       `{"activeBackend":"qiniu","backends":{"qiniu":{"accessKeyId":"ak"}},"defaultExpireDays":3,"maxFileSizeMB":50,"uploadRateLimit":5,"downloadRateLimit":10}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "should reject non-positive limits",
			body:       `{"activeBackend":"local","defaultExpireDays":0,"maxFileSizeMB":50,"uploadRateLimit":5,"downloadRateLimit":10}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "should reject malformed body",
			body:       `{"activeBackend":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w, env := f.do(t, http.MethodPut, "/api/admin/settings", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, env.Message)
			assert.Equal(t, tt.wantStatus == http.StatusOK, env.Success)
		})
	}
}

func TestHandler_UpdateSettingsMasksAndKeepsSecrets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := `{"activeBackend":"tencent","backends":{"tencent":{"accessKeyId":"ak","accessKeySecret":"real-secret","bucket":"b","region":"ap-guangzhou"}},"defaultExpireDays":7,"maxFileSizeMB":100,"uploadRateLimit":10,"downloadRateLimit":20}`
	w, env := f.do(t, http.MethodPut, "/api/admin/settings", body)
	require.Equal(t, http.StatusOK, w.Code)

	var data settingsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, secretMask, data.Settings.Backends[storage.BackendCOS].AccessKeySecret)

	resend := strings.Replace(body, "real-secret", secretMask, 1)
	resend = strings.Replace(resend, `"defaultExpireDays":7`, `"defaultExpireDays":2`, 1)
	w, _ = f.do(t, http.MethodPut, "/api/admin/settings", resend)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := f.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "real-secret", stored.Credentials(storage.BackendCOS).AccessKeySecret)
	assert.Equal(t, 2, stored.DefaultExpireDays)
}

func TestHandler_TestConnection(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantStatus    int
		wantConnected bool
	}{
		{name: "should connect to local disk", body: `{"backend":"local"}`, wantStatus: http.StatusOK, wantConnected: true},
		{name: "should fail unknown backend", body: `{"backend":"dropbox"}`, wantStatus: http.StatusOK},
		{name: "should fail incomplete credentials", body: `{"backend":"aws","credentials":{"bucket":"b"}}`, wantStatus: http.StatusOK},
		{name: "should require backend", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w, env := f.do(t, http.MethodPost, "/api/admin/settings/test", tt.body)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var data testConnectionData
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, tt.wantConnected, data.Connected)
		})
	}
}

func TestHandler_FilesAndStats(t *testing.T) {
	f := newFixture(t)
	first := f.upload(t, "a.txt", "hello")
	f.upload(t, "b.txt", "world!")

	w, env := f.do(t, http.MethodGet, "/api/admin/files?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Files, 1)
	assert.Equal(t, 1, list.Limit)

	w, _ = f.do(t, http.MethodGet, "/api/admin/files?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.EqualValues(t, 2, sum["totalFiles"])
	assert.EqualValues(t, 11, sum["totalSize"])
	assert.Equal(t, "11 B", sum["totalSizeHuman"])

	w, env = f.do(t, http.MethodGet, "/api/admin/stats?fileId="+first.FileID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats share.FileStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, first.FileID, stats.File.ID)
	require.Len(t, stats.Links, 1)
	assert.Equal(t, first.ShareCode, stats.Links[0].ShareCode)

	w, _ = f.do(t, http.MethodGet, "/api/admin/stats?fileId=unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_CleanupAndReclaim(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.txt", "hello")

	w, env := f.do(t, http.MethodPost, "/api/admin/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cleaned cleanupData
	require.NoError(t, json.Unmarshal(env.Data, &cleaned))
	assert.Equal(t, int64(0), cleaned.Expired)

	f.clock.Advance(8 * 24 * time.Hour)

	_, env = f.do(t, http.MethodPost, "/api/admin/cleanup", "")
	require.NoError(t, json.Unmarshal(env.Data, &cleaned))
	assert.Equal(t, int64(1), cleaned.Expired)

	w, env = f.do(t, http.MethodPost, "/api/admin/reclaim", "")
	require.Equal(t, http.StatusOK, w.Code)
	var reclaimed reclaimData
	require.NoError(t, json.Unmarshal(env.Data, &reclaimed))
	assert.Equal(t, int64(1), reclaimed.Reclaimed)
}

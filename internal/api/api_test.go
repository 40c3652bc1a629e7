package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Planetworks/DarkMultiPlayer/internal/api"
	"github.com/Planetworks/DarkMultiPlayer/internal/auth"
	"github.com/Planetworks/DarkMultiPlayer/internal/cache"
	"github.com/Planetworks/DarkMultiPlayer/internal/config"
	"github.com/Planetworks/DarkMultiPlayer/internal/events"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
	"github.com/Planetworks/DarkMultiPlayer/internal/network"
	"github.com/Planetworks/DarkMultiPlayer/internal/preferences"
	"github.com/Planetworks/DarkMultiPlayer/internal/settings"
)

type testEnv struct {
	srv      *httptest.Server
	mem      *config.MemStore
	store    *settings.Store
	cache    *cache.Controller
	cacheDir string
	session  *network.Session
}

// fakeBackups records backup requests.
type fakeBackups struct{ files []string }

func (f *fakeBackups) RunBackupNow() (string, error) {
	f.files = append(f.files, "dmpclient-config-2026-10-15.tar.gz")
	return f.files[len(f.files)-1], nil
}

func (f *fakeBackups) ListBackups() ([]string, error) { return f.files, nil }

// newTestServer spins up a full router with in-memory dependencies.
func newTestServer(t *testing.T, authSvc *auth.Service) *testEnv {
	t.Helper()

	mem := config.NewMemStore()
	bus := events.NewBus()

	store, err := settings.New(mem, bus)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	cacheDir := t.TempDir()
	ctrl, err := cache.New(cache.NewDirStorage(cacheDir), store, bus, cache.Options{})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	session := network.NewSession("Jebediah", 0)

	router := api.NewRouter(api.Deps{
		Settings:    store,
		Cache:       ctrl,
		Preferences: preferences.New(store, session, session),
		Connection:  session,
		Backups:     &fakeBackups{},
		Events:      bus,
		Auth:        authSvc,
		Info: func() models.Info {
			return models.Info{Version: "test", ConfigPath: mem.Path(), Connection: session.State()}
		},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, mem: mem, store: store, cache: ctrl, cacheDir: cacheDir, session: session}
}

// do is a convenience helper for making requests to the test server.
func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do %s %s: %v", method, path, err)
	}
	return resp
}

// decodeJSON reads and decodes a JSON response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireStatus fails the test if the response status doesn't match.
func requireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, expected, body)
	}
}

// --- Settings ---

func TestGetSettings(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "GET", "/api/settings", "")
	requireStatus(t, resp, http.StatusOK)

	var st models.Settings
	decodeJSON(t, resp, &st)
	if st != models.DefaultSettings() {
		t.Errorf("GET /api/settings = %+v, want defaults", st)
	}
}

func TestPatchSettings_ClampsAndPersists(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "PATCH", "/api/settings", `{"cache_size_mb": 5000, "toolbar_type": "force_stock", "revert_enabled": false}`)
	requireStatus(t, resp, http.StatusOK)

	var st models.Settings
	decodeJSON(t, resp, &st)
	if st.CacheSizeMB != models.MaxCacheSizeMB || st.ToolbarType != models.ToolbarForceStock || st.RevertEnabled {
		t.Errorf("PATCH result = %+v", st)
	}
	stored, _ := env.mem.Load()
	if *stored != st {
		t.Errorf("stored = %+v, want %+v", *stored, st)
	}
}

func TestPatchSettings_ColorGoesThroughPush(t *testing.T) {
	env := newTestServer(t, nil)
	env.session.SetState(models.Running)

	resp := do(t, env.srv, "PATCH", "/api/settings", `{"player_color": {"r": 0.5, "g": 0.5, "b": 0.5}, "language": "english"}`)
	requireStatus(t, resp, http.StatusOK)

	var st models.Settings
	decodeJSON(t, resp, &st)
	if st.PlayerColor != (models.Color{R: 0.5, G: 0.5, B: 0.5}) || st.Language != models.LanguageEnglish {
		t.Errorf("PATCH result = %+v", st)
	}
	if env.session.Pending() != 1 {
		t.Errorf("queued pushes = %d, want 1", env.session.Pending())
	}
}

func TestPatchSettings_InvalidJSON(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "PATCH", "/api/settings", `{not json`)
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestPatchSettings_UnknownEnum(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "PATCH", "/api/settings", `{"toolbar_type": "floating"}`)
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	if env.store.Get().ToolbarType != models.DefaultSettings().ToolbarType {
		t.Error("rejected update changed the toolbar")
	}
}

func TestPatchSettings_EscapeNotBound(t *testing.T) {
	env := newTestServer(t, nil)
	before := env.store.Get()

	resp := do(t, env.srv, "PATCH", "/api/settings", `{"chat_key": "Escape", "screenshot_key": "Escape"}`)
	requireStatus(t, resp, http.StatusOK)

	var st models.Settings
	decodeJSON(t, resp, &st)
	if st.ChatKey != before.ChatKey || st.ScreenshotKey != before.ScreenshotKey {
		t.Errorf("PATCH bound Escape: chat=%q screenshot=%q", st.ChatKey, st.ScreenshotKey)
	}
}

func TestPatchSettings_PersistenceFailure(t *testing.T) {
	env := newTestServer(t, nil)
	env.mem.FailWith(errors.New("read-only filesystem"))

	resp := do(t, env.srv, "PATCH", "/api/settings", `{"cache_size_mb": 42}`)
	requireStatus(t, resp, http.StatusInternalServerError)

	var body struct {
		Error    string          `json:"error"`
		Settings models.Settings `json:"settings"`
	}
	decodeJSON(t, resp, &body)
	if body.Error != models.CodePersistence {
		t.Errorf("error = %q, want %q", body.Error, models.CodePersistence)
	}
	if body.Settings.CacheSizeMB != 42 {
		t.Errorf("retained settings cache = %d, want 42", body.Settings.CacheSizeMB)
	}
}

func TestSetColor_Disconnected_Skipped(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "PUT", "/api/settings/color", `{"r": 2, "g": 0.25, "b": -1}`)
	requireStatus(t, resp, http.StatusOK)

	var res models.PushResult
	decodeJSON(t, resp, &res)
	if res.State != models.PushSkipped {
		t.Errorf("state = %q, want %q", res.State, models.PushSkipped)
	}
	want := models.Color{R: 1, G: 0.25, B: 0}
	if res.Settings.PlayerColor != want {
		t.Errorf("colour = %+v, want %+v", res.Settings.PlayerColor, want)
	}
	if env.session.Pending() != 0 {
		t.Errorf("queued pushes = %d, want 0", env.session.Pending())
	}
}

func TestSetColor_Running_Pushed(t *testing.T) {
	env := newTestServer(t, nil)
	env.session.SetState(models.Running)

	resp := do(t, env.srv, "PUT", "/api/settings/color", `{"r": 0.1, "g": 0.2, "b": 0.3}`)
	requireStatus(t, resp, http.StatusOK)

	var res models.PushResult
	decodeJSON(t, resp, &res)
	if res.State != models.PushPushed || res.ID == "" {
		t.Errorf("result = %+v", res)
	}
	if env.session.Pending() != 1 {
		t.Errorf("queued pushes = %d, want 1", env.session.Pending())
	}
}

func TestSetColor_SaveFails_NotPushed(t *testing.T) {
	env := newTestServer(t, nil)
	env.session.SetState(models.Running)
	env.mem.FailWith(errors.New("disk full"))

	resp := do(t, env.srv, "PUT", "/api/settings/color", `{"r": 0.1, "g": 0.2, "b": 0.3}`)
	requireStatus(t, resp, http.StatusInternalServerError)

	var res models.PushResult
	decodeJSON(t, resp, &res)
	if res.State != models.PushPending || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
	if env.session.Pending() != 0 {
		t.Errorf("queued pushes = %d, want 0", env.session.Pending())
	}
}

func TestRandomColor(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "POST", "/api/settings/color/random", "")
	requireStatus(t, resp, http.StatusOK)

	var res models.PushResult
	decodeJSON(t, resp, &res)
	c := res.Settings.PlayerColor
	if c.R != 1 && c.G != 1 && c.B != 1 {
		t.Errorf("random colour %+v has no full channel", c)
	}
	if env.store.Get().PlayerColor != c {
		t.Error("random colour not stored")
	}
}

func TestSetCacheSize(t *testing.T) {
	env := newTestServer(t, nil)

	tests := []struct {
		input    string
		wantEcho string
		wantMB   int
	}{
		{"250", "250", 250},
		{"0", "1", 1},
		{"abc", "1", 1},
		{"99999", "1000", 1000},
		{"", "1000", 1000},
	}
	for _, tt := range tests {
		body, _ := json.Marshal(models.CacheSizeInput{Input: tt.input})
		resp := do(t, env.srv, "POST", "/api/settings/cache-size", string(body))
		requireStatus(t, resp, http.StatusOK)

		var res models.CacheSizeResult
		decodeJSON(t, resp, &res)
		if res.Echo != tt.wantEcho || res.Settings.CacheSizeMB != tt.wantMB {
			t.Errorf("input %q: echo %q cache %d, want %q %d", tt.input, res.Echo, res.Settings.CacheSizeMB, tt.wantEcho, tt.wantMB)
		}
	}
}

func TestCycleToolbarAndLanguage(t *testing.T) {
	env := newTestServer(t, nil)

	want := []models.ToolbarType{models.ToolbarBothIfInstalled, models.ToolbarDisabled, models.ToolbarForceStock}
	for _, w := range want {
		resp := do(t, env.srv, "POST", "/api/settings/toolbar/next", "")
		requireStatus(t, resp, http.StatusOK)
		var st models.Settings
		decodeJSON(t, resp, &st)
		if st.ToolbarType != w {
			t.Errorf("toolbar = %v, want %v", st.ToolbarType, w)
		}
	}

	resp := do(t, env.srv, "POST", "/api/settings/language/next", "")
	requireStatus(t, resp, http.StatusOK)
	var st models.Settings
	decodeJSON(t, resp, &st)
	if st.Language != models.LanguageEnglish {
		t.Errorf("language = %v, want english", st.Language)
	}
}

func TestResetDisclaimer(t *testing.T) {
	env := newTestServer(t, nil)
	one := 1
	if _, err := env.store.Set(models.SettingsUpdate{DisclaimerAccepted: &one}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	resp := do(t, env.srv, "POST", "/api/settings/disclaimer/reset", "")
	requireStatus(t, resp, http.StatusOK)
	var st models.Settings
	decodeJSON(t, resp, &st)
	if st.DisclaimerAccepted != 0 {
		t.Errorf("DisclaimerAccepted = %d, want 0", st.DisclaimerAccepted)
	}
}

func TestSetKey(t *testing.T) {
	env := newTestServer(t, nil)

	tests := []struct {
		binding   string
		body      string
		status    int
		wantBound bool
	}{
		{"chat", `{"key": "F2"}`, http.StatusOK, true},
		{"screenshot", `{"key": "F12"}`, http.StatusOK, true},
		{"chat", `{"key": "Escape"}`, http.StatusOK, false},
		{"jump", `{"key": "Space"}`, http.StatusNotFound, false},
	}
	for _, tt := range tests {
		resp := do(t, env.srv, "PUT", "/api/settings/keys/"+tt.binding, tt.body)
		requireStatus(t, resp, tt.status)
		if tt.status != http.StatusOK {
			resp.Body.Close()
			continue
		}
		var res struct {
			Bound bool `json:"bound"`
		}
		decodeJSON(t, resp, &res)
		if res.Bound != tt.wantBound {
			t.Errorf("%s %s: bound = %v, want %v", tt.binding, tt.body, res.Bound, tt.wantBound)
		}
	}

	st := env.store.Get()
	if st.ChatKey != "F2" || st.ScreenshotKey != "F12" {
		t.Errorf("keys = %q/%q, want F2/F12", st.ChatKey, st.ScreenshotKey)
	}
}

// --- Cache ---

func TestCacheEndpoints(t *testing.T) {
	env := newTestServer(t, nil)
	if _, err := env.cache.Put([]byte("vessel-proto")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp := do(t, env.srv, "GET", "/api/cache", "")
	requireStatus(t, resp, http.StatusOK)
	var info models.CacheInfo
	decodeJSON(t, resp, &info)
	if info.Entries != 1 || info.CurrentBytes != int64(len("vessel-proto")) || info.BudgetMB != models.DefaultCacheSizeMB {
		t.Errorf("GET /api/cache = %+v", info)
	}

	resp = do(t, env.srv, "POST", "/api/cache/expire", "")
	requireStatus(t, resp, http.StatusOK)
	var rep models.ExpireReport
	decodeJSON(t, resp, &rep)
	if rep.Removed != 0 || rep.CurrentBytes != info.CurrentBytes {
		t.Errorf("expire under budget = %+v", rep)
	}

	resp = do(t, env.srv, "POST", "/api/cache/delete", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &info)
	if info.CurrentBytes != 0 || info.Entries != 0 {
		t.Errorf("after delete = %+v", info)
	}
}

func TestCacheKeysAndRefresh(t *testing.T) {
	env := newTestServer(t, nil)
	key, err := env.cache.Put([]byte("mun-arch"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp := do(t, env.srv, "GET", "/api/cache/keys", "")
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		Keys []string `json:"keys"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Keys) != 1 || body.Keys[0] != key {
		t.Errorf("GET /api/cache/keys = %v, want [%s]", body.Keys, key)
	}

	// Drop a second object into the cache directory behind the controller.
	if err := os.WriteFile(filepath.Join(env.cacheDir, strings.Repeat("0", 64)), []byte("minmus"), 0644); err != nil {
		t.Fatal(err)
	}
	resp = do(t, env.srv, "GET", "/api/cache?refresh=true", "")
	requireStatus(t, resp, http.StatusOK)
	var info models.CacheInfo
	decodeJSON(t, resp, &info)
	if info.Entries != 2 || info.CurrentBytes != int64(len("mun-arch")+len("minmus")) {
		t.Errorf("GET /api/cache?refresh=true = %+v", info)
	}
}

// TestCacheMutations_SurviveClientDisconnect sends the requests with an
// already cancelled context, as when the client hangs up first.
func TestCacheMutations_SurviveClientDisconnect(t *testing.T) {
	env := newTestServer(t, nil)
	if _, err := env.cache.Put([]byte("duna-biome")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, path := range []string{"/api/cache/expire", "/api/cache/delete"} {
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		env.srv.Config.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("POST %s with cancelled context: status = %d, body %s", path, rec.Code, rec.Body.String())
		}
	}
	if got := env.cache.Info(); got.Entries != 0 {
		t.Errorf("cache after delete = %+v, want empty", got)
	}
}

func TestDeleteCache_BusyWhileReading(t *testing.T) {
	env := newTestServer(t, nil)
	key, err := env.cache.Put([]byte("kerbin-terrain"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	release := env.cache.Acquire(key)
	defer release()

	resp := do(t, env.srv, "POST", "/api/cache/delete", "")
	requireStatus(t, resp, http.StatusConflict)

	var appErr models.AppError
	decodeJSON(t, resp, &appErr)
	if appErr.Code != models.CodeCacheBusy {
		t.Errorf("error code = %q, want %q", appErr.Code, models.CodeCacheBusy)
	}
}

// --- System ---

func TestGetConnection(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "GET", "/api/connection", "")
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		State   models.ConnectionState `json:"state"`
		Running bool                   `json:"running"`
	}
	decodeJSON(t, resp, &body)
	if body.State != models.Disconnected || body.Running {
		t.Errorf("connection = %+v", body)
	}

	env.session.SetState(models.Running)
	resp = do(t, env.srv, "GET", "/api/connection", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &body)
	if body.State != models.Running || !body.Running {
		t.Errorf("connection = %+v", body)
	}
}

func TestGetInfo(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "GET", "/api/info", "")
	requireStatus(t, resp, http.StatusOK)
	var info models.Info
	decodeJSON(t, resp, &info)
	if info.Version != "test" || info.ConfigPath != ":memory:" {
		t.Errorf("info = %+v", info)
	}
}

func TestBackups(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "POST", "/api/backup", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env.srv, "GET", "/api/backups", "")
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		Backups []string `json:"backups"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Backups) != 1 {
		t.Errorf("backups = %v, want one file", body.Backups)
	}
}

func TestNotFound_JSON(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "GET", "/api/zones", "")
	requireStatus(t, resp, http.StatusNotFound)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	resp.Body.Close()
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestServer(t, nil)

	resp := do(t, env.srv, "DELETE", "/api/settings", "")
	requireStatus(t, resp, http.StatusMethodNotAllowed)
	resp.Body.Close()
}

func TestSSESubscribe(t *testing.T) {
	env := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/subscribe", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	client := &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// The stream opens with the current settings, then the cache occupancy.
	scanner := bufio.NewScanner(resp.Body)
	var got []events.Event
	for len(got) < 2 && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("SSE data is not valid Event JSON: %v", err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Kind != events.SettingsChanged || got[0].Settings == nil {
		t.Errorf("first event = %+v, want settings", got[0])
	}
	if got[1].Kind != events.CacheChanged || got[1].Cache == nil {
		t.Errorf("second event = %+v, want cache", got[1])
	}
}

// --- Auth ---

func TestAuth_SecuredRouter(t *testing.T) {
	dir := t.TempDir()
	data, _ := json.Marshal([]auth.Key{{Name: "overlay", Key: "s3cret"}})
	if err := os.WriteFile(filepath.Join(dir, auth.KeysFileName), data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	authSvc, err := auth.NewService(dir)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	t.Cleanup(authSvc.Close)
	env := newTestServer(t, authSvc)

	resp := do(t, env.srv, "GET", "/api/settings", "")
	requireStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	req, _ := http.NewRequest("GET", env.srv.URL+"/api/settings", nil)
	req.Header.Set(auth.KeyHeader, "s3cret")
	resp, err = env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

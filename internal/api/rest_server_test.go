package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/annel0/realm-server/internal/auth"
	"github.com/annel0/realm-server/internal/protocol"
	"github.com/annel0/realm-server/internal/realm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	rs     *RestServer
	realm  *realm.Realm
	cancel context.CancelFunc
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	repo, err := auth.NewMemoryUserRepo()
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(repo, nil)
	require.NoError(t, err)

	reg := realm.NewRegistry()
	r := realm.New(realm.NewWorld(), realm.Options{ID: "main", TickRate: 50})
	require.NoError(t, reg.Register(r))

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)

	rs := NewRestServer(Config{
		Authenticator: authn,
		UserRepo:      repo,
		Registry:      reg,
		PromRegistry:  prometheus.NewRegistry(),
	})
	return &testAPI{rs: rs, realm: r, cancel: cancel}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.rs.Router().ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()

	w := a.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestRest_Health(t *testing.T) {
	a := newTestAPI(t)

	w := a.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRest_LoginAndStats(t *testing.T) {
	a := newTestAPI(t)

	token := a.login(t, "test", "test")

	w := a.request(t, http.MethodGet, "/api/stats", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp GenericResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestRest_LoginRejectsBadCredentials(t *testing.T) {
	a := newTestAPI(t)

	w := a.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Username: "test",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRest_ProtectedRequiresToken(t *testing.T) {
	a := newTestAPI(t)

	w := a.request(t, http.MethodGet, "/api/realms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.request(t, http.MethodGet, "/api/realms", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRest_ListRealms(t *testing.T) {
	a := newTestAPI(t)

	token := a.login(t, "test", "test")

	w := a.request(t, http.MethodGet, "/api/realms", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool         `json:"success"`
		Data    []realm.Info `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "main", resp.Data[0].ID)
	assert.InDelta(t, 50.0, resp.Data[0].TickRate, 0.001)
}

func TestRest_RealmInfoNotFound(t *testing.T) {
	a := newTestAPI(t)

	token := a.login(t, "test", "test")

	w := a.request(t, http.MethodGet, "/api/realms/nowhere", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRest_AdminEndpointsRequireAdmin(t *testing.T) {
	a := newTestAPI(t)

	playerToken := a.login(t, "test", "test")

	w := a.request(t, http.MethodPost, "/api/admin/register", playerToken, RegisterRequest{
		Username: "newbie",
		Password: "secret123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRest_AdminRegister(t *testing.T) {
	a := newTestAPI(t)

	adminToken := a.login(t, "admin", "admin")

	w := a.request(t, http.MethodPost, "/api/admin/register", adminToken, RegisterRequest{
		Username: "newbie",
		Password: "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Новый пользователь может войти
	a.login(t, "newbie", "secret123")

	// Дубликат отклоняется
	w = a.request(t, http.MethodPost, "/api/admin/register", adminToken, RegisterRequest{
		Username: "newbie",
		Password: "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Слишком короткий пароль отклоняется
	w = a.request(t, http.MethodPost, "/api/admin/register", adminToken, RegisterRequest{
		Username: "another",
		Password: "abc",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRest_SetTileGoesThroughTickLoop(t *testing.T) {
	a := newTestAPI(t)

	adminToken := a.login(t, "admin", "admin")

	w := a.request(t, http.MethodPost, "/api/realms/main/tiles", adminToken, TileRequest{
		X: 3, Y: 4, Kind: 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Недопустимый тип тайла
	w = a.request(t, http.MethodPost, "/api/realms/main/tiles", adminToken, TileRequest{
		X: 0, Y: 0, Kind: 99,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRest_SetPhysics(t *testing.T) {
	a := newTestAPI(t)

	adminToken := a.login(t, "admin", "admin")

	w := a.request(t, http.MethodPut, "/api/realms/main/physics", adminToken, map[string]interface{}{
		"friction":   8.0,
		"stop_speed": 120.0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRest_StopIsIdempotent(t *testing.T) {
	a := newTestAPI(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Сервер не запускался через Start — Stop должен быть no-op
	assert.NoError(t, a.rs.Stop(ctx))
}

type nopSender struct{}

func (nopSender) Send(protocol.MsgType, interface{}) error { return nil }

func TestRest_RealmSessions(t *testing.T) {
	a := newTestAPI(t)

	joined := make(chan struct{})
	a.realm.Post(func() {
		a.realm.Join(42, "гость", nopSender{})
		close(joined)
	})
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("мир не принял сессию")
	}

	token := a.login(t, "test", "test")
	w := a.request(t, http.MethodGet, "/api/realms/main/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool                `json:"success"`
		Data    []realm.SessionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, uint64(42), resp.Data[0].ClientID)
	assert.Equal(t, "гость", resp.Data[0].Name)
	assert.False(t, resp.Data[0].Dormant)

	w = a.request(t, http.MethodGet, "/api/realms/void/sessions", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

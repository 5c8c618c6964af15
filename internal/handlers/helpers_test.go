package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"iazeconnect/internal/config"
	"iazeconnect/internal/database/dbtest"
	"iazeconnect/internal/handlers"
	"iazeconnect/internal/models"
	"iazeconnect/internal/router"
	"iazeconnect/internal/services"
)

// fakeEvolution answers the Evolution API endpoints the handlers reach
type fakeEvolution struct {
	mu      sync.Mutex
	created []string
	deleted []string
	sent    []map[string]interface{}
}

func (f *fakeEvolution) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/instance/create":
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body["instanceName"].(string))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"instance":{"status":"created"}}`))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/instance/connect/"):
		_, _ = w.Write([]byte(`{"base64":"data:image/png;base64,QR1"}`))
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/instance/delete/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/instance/delete/"))
		_, _ = w.Write([]byte(`{"status":"SUCCESS"}`))
	case r.Method == http.MethodDelete:
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/message/sendText/"):
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.sent = append(f.sent, body)
		_, _ = w.Write([]byte(`{"key":{"id":"OUT-1","fromMe":true}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeEvolution) createdNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeEvolution) deletedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeEvolution) sentBodies() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.sent...)
}

type testEnv struct {
	engine    *gin.Engine
	hub       *handlers.Hub
	container *services.Container
	evolution *fakeEvolution
	token     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	evolution := &fakeEvolution{}
	evolutionServer := httptest.NewServer(evolution)
	t.Cleanup(evolutionServer.Close)

	credentialServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":true,"username":"teste123","password":"42","url":"http://tv.example"}`))
	}))
	t.Cleanup(credentialServer.Close)

	cfg := &config.Config{
		JWTSecret:            "segredo-de-teste",
		EvolutionAPIURL:      evolutionServer.URL,
		EvolutionAPIKey:      "chave",
		GatewayTimeout:       2 * time.Second,
		GatewayCreateTimeout: 2 * time.Second,
		PollInterval:         time.Minute,
		MessageFetchLimit:    10,
		ProcessedTTL:         time.Hour,
		CredentialAPIURL:     credentialServer.URL,
		FlowThrottleWindow:   24 * time.Hour,
		HandoffRetryInterval: time.Minute,
		DefaultTenantID:      "t1",
		CORSOrigins:          []string{"http://localhost:3000"},
	}

	hub := handlers.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	container := services.NewContainer(dbtest.Open(t), nil, cfg, hub)
	token, err := container.AuthService.IssueToken("t1", "u1", "ADMIN", time.Hour)
	require.NoError(t, err)

	return &testEnv{
		engine:    router.Setup(container, hub),
		hub:       hub,
		container: container,
		evolution: evolution,
		token:     token,
	}
}

// do performs a request against the router; token may be empty
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

// createConnection registers a connection through the API
func (e *testEnv) createConnection(t *testing.T, name string) *models.Connection {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/connections", e.token, gin.H{"instance_name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var connection models.Connection
	decode(t, rec, &connection)
	return &connection
}

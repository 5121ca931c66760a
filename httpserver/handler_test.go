package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/ruteri/supplychain-registry-client/binding"
	"github.com/ruteri/supplychain-registry-client/catalog"
	"github.com/ruteri/supplychain-registry-client/gateway"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/notify"
	"github.com/ruteri/supplychain-registry-client/registry"
	"github.com/ruteri/supplychain-registry-client/session"
	"github.com/ruteri/supplychain-registry-client/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedChain struct{}

func (fixedChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

type testEnv struct {
	server   *Server
	hub      *Hub
	account  common.Address
	session  *session.Session
	binding  *binding.Binding
	center   *notify.Center
	registry *registry.MemoryRegistry
	cancel   func()
}

// newTestEnv wires the real components over an in-memory registry.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)

	provider := wallet.NewKeyedProvider(fixedChain{}, []*ecdsa.PrivateKey{key}, wallet.WithLogger(logger))
	sess := session.New(provider, logger)

	memory := registry.NewMemoryRegistry(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), account)
	bind := binding.New(memory.Factory(), logger)
	bind.SetDescriptor(&interfaces.Descriptor{
		Schema:  json.RawMessage(registry.SupplyChainABI),
		Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
	})
	detachBinding := bind.Attach(sess)

	center := notify.NewCenter(notify.WithClock(clock.NewMock()), notify.WithLogger(logger))
	gw := gateway.New(bind, center, gateway.WithLogger(logger))

	hub := NewHub(logger, nil)
	cat := catalog.New(gw, hub, logger)
	detachCatalog := cat.Attach(context.Background(), bind)

	handler := NewHandler(sess, bind, center, gw, cat, logger)
	hub.SetSnapshot(handler.Snapshot)

	sess.Subscribe(Forward[interfaces.ConnectionState](hub, MessageSession))
	bind.Subscribe(Forward[interfaces.BindingUpdate](hub, MessageBinding))
	center.Subscribe(Forward[[]interfaces.Notification](hub, MessageNotifications))
	cat.Subscribe(Forward[[]interfaces.Component](hub, MessageCatalog))

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		GracefulShutdownDuration: time.Second,
	}, handler, hub, nil)
	require.NoError(t, err)

	return &testEnv{
		server:   srv,
		hub:      hub,
		account:  account,
		session:  sess,
		binding:  bind,
		center:   center,
		registry: memory,
		cancel: func() {
			detachCatalog()
			detachBinding()
			bind.Close()
			hub.Close()
		},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestAPI_ComponentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	defer env.cancel()

	// nothing works before the wallet is connected
	rr := env.do(t, http.MethodPost, "/api/components", RegisterRequest{Name: "Bolt"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Registration failed: Contract not initialized", decode[map[string]string](t, rr)["error"])

	rr = env.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	state := decode[map[string]interface{}](t, rr)
	assert.Equal(t, "connected", state["status"])
	assert.Equal(t, strings.ToLower(env.account.Hex()), state["account"])

	rr = env.do(t, http.MethodGet, "/api/binding", nil)
	assert.Equal(t, true, decode[map[string]interface{}](t, rr)["ready"])

	rr = env.do(t, http.MethodPost, "/api/components", RegisterRequest{Name: "Bolt", Description: "M8", InitialMetadata: "{}"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	registered := decode[gateway.RegisterResult](t, rr)
	assert.Equal(t, "1", registered.ComponentID)
	assert.True(t, registered.Success)

	rr = env.do(t, http.MethodPost, "/api/components/1/status", StatusRequest{Status: "Shipped", Details: "dock 4"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/components/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	component := decode[interfaces.Component](t, rr)
	assert.Equal(t, "Shipped", component.CurrentStatus)
	assert.Equal(t, env.account.Hex(), component.CurrentOwner)

	newOwner := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	rr = env.do(t, http.MethodPost, "/api/components/1/transfer", TransferRequest{NewOwner: newOwner.Hex()})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// the previous owner is rejected by the registry
	rr = env.do(t, http.MethodPost, "/api/components/1/status", StatusRequest{Status: "Installed"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "Status update failed: execution reverted: not owner", decode[map[string]string](t, rr)["error"])

	rr = env.do(t, http.MethodGet, "/api/components/1/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]interfaces.HistoryEntry](t, rr), 3)

	rr = env.do(t, http.MethodGet, "/api/components/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/roles/DEFAULT_ADMIN_ROLE/%s", env.account.Hex()), nil)
	assert.Equal(t, RoleResponse{Role: "DEFAULT_ADMIN_ROLE", Account: env.account.Hex(), HasRole: true}, decode[RoleResponse](t, rr))

	// the registration event reaches the catalog asynchronously
	require.Eventually(t, func() bool {
		rr := env.do(t, http.MethodGet, "/api/catalog", nil)
		return len(decode[[]interfaces.Component](t, rr)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAPI_Notifications(t *testing.T) {
	env := newTestEnv(t)
	defer env.cancel()

	id := env.center.ShowError("Registration failed: boom")

	rr := env.do(t, http.MethodGet, "/api/notifications", nil)
	notifications := decode[[]interfaces.Notification](t, rr)
	require.Len(t, notifications, 1)
	assert.Equal(t, id, notifications[0].ID)
	assert.Equal(t, interfaces.NotificationError, notifications[0].Kind)

	rr = env.do(t, http.MethodDelete, "/api/notifications/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, env.center.Notifications())
}

func TestAPI_Session(t *testing.T) {
	env := newTestEnv(t)
	defer env.cancel()

	rr := env.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, "disconnected", decode[map[string]interface{}](t, rr)["status"])

	env.do(t, http.MethodPost, "/api/session/connect", nil)
	rr = env.do(t, http.MethodPost, "/api/session/disconnect", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "disconnected", decode[map[string]interface{}](t, rr)["status"])

	rr = env.do(t, http.MethodGet, "/api/binding", nil)
	assert.Equal(t, false, decode[map[string]interface{}](t, rr)["ready"])
}

func TestAPI_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	defer env.cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/components", strings.NewReader(`{"name":`))
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/components/1/transfer", strings.NewReader(`{"owner":"0x01"}`))
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&gateway.OperationError{Kind: interfaces.ErrInvalidInput}, http.StatusBadRequest},
		{fmt.Errorf("%w: declined", interfaces.ErrUserRejected), http.StatusForbidden},
		{&gateway.QueryError{Kind: interfaces.ErrBindingUnavailable}, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: no wallet", interfaces.ErrProviderUnavailable), http.StatusServiceUnavailable},
		{&gateway.OperationError{Kind: interfaces.ErrTimeout}, http.StatusGatewayTimeout},
		{&gateway.OperationError{Kind: interfaces.ErrTransactionFailed}, http.StatusUnprocessableEntity},
		{&gateway.OperationError{Kind: interfaces.ErrRemoteCallFailed}, http.StatusBadGateway},
		{&RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("big")}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	defer env.cancel()

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/livez", http.StatusOK, `{"status":"alive"}`},
		{"/readyz", http.StatusOK, `{"status":"ready"}`},
		{"/drain", http.StatusOK, `{"status":"draining"}`},
		{"/drain", http.StatusOK, `{"status":"already draining"}`},
		{"/readyz", http.StatusServiceUnavailable, `{"status":"not ready"}`},
		{"/undrain", http.StatusOK, `{"status":"ready"}`},
		{"/undrain", http.StatusOK, `{"status":"already ready"}`},
	}
	for _, tt := range tests {
		rr := env.do(t, http.MethodGet, tt.path, nil)
		assert.Equal(t, tt.status, rr.Code, tt.path)
		assert.Equal(t, tt.body, rr.Body.String(), tt.path)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func messageType(msg map[string]json.RawMessage) string {
	var s string
	_ = json.Unmarshal(msg["type"], &s)
	return s
}

func TestWebSocket_Stream(t *testing.T) {
	env := newTestEnv(t)
	defer env.cancel()

	server := httptest.NewServer(env.server.Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot []string
	for i := 0; i < 4; i++ {
		snapshot = append(snapshot, messageType(readMessage(t, conn)))
	}
	assert.Equal(t, []string{MessageSession, MessageBinding, MessageNotifications, MessageCatalog}, snapshot)
	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	env.hub.Navigate(catalog.RouteComponentDetails, map[string]string{"componentId": "7"})
	msg := readMessage(t, conn)
	assert.Equal(t, MessageNavigate, messageType(msg))
	assert.JSONEq(t, `{"route":"component-details","params":{"componentId":"7"}}`, string(msg["data"]))

	require.NoError(t, env.session.Connect(context.Background()))
	seen := map[string]bool{}
	for !seen[MessageSession] || !seen[MessageBinding] {
		seen[messageType(readMessage(t, conn))] = true
	}

	env.hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
	}
	assert.Equal(t, 0, env.hub.Clients())
}

// syncBuffer is a log sink safe for the concurrent writes of the hub.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHub_OversizedSnapshotIsLogged(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	snapshot := func() []Message {
		msgs := make([]Message, maxMessageQueue+1)
		for i := range msgs {
			msgs[i] = Message{Type: MessageNotifications, Data: []interfaces.Notification{}}
		}
		return msgs
	}
	hub := NewHub(logger, snapshot)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < maxMessageQueue; i++ {
		assert.Equal(t, MessageNotifications, messageType(readMessage(t, conn)))
	}
	assert.Contains(t, logs.String(), "Dropping snapshot message")
}

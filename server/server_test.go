package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/wfunc/dilemmaview/broadcast"
	"github.com/wfunc/dilemmaview/ledger"
	"github.com/wfunc/dilemmaview/network"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/services"
	"github.com/wfunc/dilemmaview/session"
	"github.com/wfunc/dilemmaview/view"
)

// MockTrigger records requested refreshes.
type MockTrigger struct {
	mu      sync.Mutex
	reasons []refresh.Reason
}

func (m *MockTrigger) Trigger(reason refresh.Reason) {
	m.mu.Lock()
	m.reasons = append(m.reasons, reason)
	m.mu.Unlock()
}

type testEnv struct {
	server    *ViewServer
	account   *session.Account
	scheduler *refresh.Scheduler
	trigger   *MockTrigger
	memory    *ledger.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stake := decimal.NewFromInt(1000)
	memory := ledger.NewMemory(stake)
	adapter := ledger.NewAdapter(memory)
	account := session.NewAccount()
	cache := refresh.NewCache()
	scheduler := refresh.NewScheduler(adapter, cache, account)
	coordinator := services.NewActionCoordinator(adapter, scheduler, account, stake)
	manager := session.NewManager()
	broadcaster := broadcast.NewViewBroadcaster(manager, account)
	scheduler.OnPublish(broadcaster.Publish)
	trigger := &MockTrigger{}

	return &testEnv{
		server:    NewViewServer(":0", manager, account, cache, trigger, coordinator, broadcaster),
		account:   account,
		scheduler: scheduler,
		trigger:   trigger,
		memory:    memory,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestViewServer_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestViewServer_IdentityAndAction(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/action", `{"type":"join"}`)
	var result network.ActionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Bad action response: %v", err)
	}
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected 412 without identity, got %d", rec.Code)
	}
	if result.Refreshed || result.Error != services.ErrIdentityAbsent.Error() {
		t.Errorf("Join without identity should fail without refresh, got %+v", result)
	}

	rec = env.do(t, http.MethodPost, "/identity", `{"address":"0xAAA"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"changed":true`) {
		t.Fatalf("Identity update failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/action", `{"type":"join"}`)
	result = network.ActionResult{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Bad action response: %v", err)
	}
	if rec.Code != http.StatusOK || !result.Refreshed {
		t.Fatalf("Expected refreshed join, got %d %+v", rec.Code, result)
	}

	rec = env.do(t, http.MethodGet, "/view", "")
	var vm view.ViewModel
	if err := json.Unmarshal(rec.Body.Bytes(), &vm); err != nil {
		t.Fatalf("Bad view response: %v", err)
	}
	if vm.Self == nil || vm.Phase.String() != "waiting" {
		t.Errorf("Expected waiting self after join, got phase %s self %+v", vm.Phase, vm.Self)
	}

	// 再次加入被账本拒绝
	rec = env.do(t, http.MethodPost, "/action", `{"type":"join"}`)
	result = network.ActionResult{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if rec.Code != http.StatusConflict || !result.Rejected || result.Error != "already playing" {
		t.Errorf("Expected rejection, got %d %+v", rec.Code, result)
	}
}

func TestViewServer_UnknownAction(t *testing.T) {
	env := newTestEnv(t)
	env.account.Set("0xAAA")
	rec := env.do(t, http.MethodPost, "/action", `{"type":"spin"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), services.ErrUnknownAction.Error()) {
		t.Errorf("Expected unknown action error, got %s", rec.Body.String())
	}
}

func TestViewServer_ManualRefresh(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/refresh", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if len(env.trigger.reasons) != 1 || env.trigger.reasons[0] != refresh.ReasonManual {
		t.Errorf("Expected one manual trigger, got %v", env.trigger.reasons)
	}

	if rec := env.do(t, http.MethodGet, "/refresh", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /refresh, got %d", rec.Code)
	}
}

func TestViewServer_TextView(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/view?format=text", "")
	if !strings.Contains(rec.Body.String(), view.NoDuelsNotice) {
		t.Errorf("Expected empty duels notice, got %s", rec.Body.String())
	}
}

func readPacket(t *testing.T, c *websocket.Conn) *network.Packet {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	packet, err := network.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return packet
}

func TestViewServer_WebSocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if p := readPacket(t, c); p.MsgID != network.MsgTypeView {
		t.Fatalf("Expected initial view, got %d", p.MsgID)
	}

	// 未连接账户时操作被拒绝
	c.WriteMessage(websocket.BinaryMessage, network.Encode(network.MsgTypeAction, []byte(`{"type":"withdraw"}`)))
	p := readPacket(t, c)
	if p.MsgID != network.MsgTypeActionResult {
		t.Fatalf("Expected action result, got %d", p.MsgID)
	}
	var result network.ActionResult
	json.Unmarshal(p.Data, &result)
	if result.Refreshed || !strings.Contains(result.Error, services.ErrIdentityAbsent.Error()) {
		t.Errorf("Expected identity error, got %+v", result)
	}

	env.account.Set("0xBBB")
	c.WriteMessage(websocket.BinaryMessage, network.Encode(network.MsgTypeAction, []byte(`{"type":"join"}`)))

	// 刷新发布的视图先于操作结果到达
	sawView := false
	for i := 0; i < 3; i++ {
		p := readPacket(t, c)
		if p.MsgID == network.MsgTypeView {
			sawView = true
			continue
		}
		if p.MsgID == network.MsgTypeActionResult {
			break
		}
	}
	if !sawView {
		t.Error("Expected a view push after the join refresh")
	}

	if err := env.server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestViewServer_BadIdentityBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/identity", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestActionStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown action", fmt.Errorf("%w: %q", services.ErrUnknownAction, "spin"), http.StatusBadRequest},
		{"no identity", services.ErrIdentityAbsent, http.StatusPreconditionFailed},
		{"rejected", fmt.Errorf("join: %w", ledger.Reject("already playing")), http.StatusConflict},
		{"timeout", fmt.Errorf("join: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"transport", errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := actionStatus(tc.err); got != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, got)
			}
		})
	}
}

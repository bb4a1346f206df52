package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/dilemmaview/broadcast"
	"github.com/wfunc/dilemmaview/ledger"
	"github.com/wfunc/dilemmaview/logger"
	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/network"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/services"
	"github.com/wfunc/dilemmaview/session"
	"github.com/wfunc/dilemmaview/state"
	"github.com/wfunc/dilemmaview/view"
)

// HeartbeatTimeout 超过该时间未收到数据则断开
const HeartbeatTimeout = 60 * time.Second

// Dispatcher submits a parsed action.
type Dispatcher interface {
	Dispatch(ctx context.Context, action state.Action) (bool, error)
}

// Triggerer schedules a refresh without waiting for it.
type Triggerer interface {
	Trigger(reason refresh.Reason)
}

// ViewerGauge tracks connected viewers.
type ViewerGauge interface {
	IncViewers()
	DecViewers()
}

type nopGauge struct{}

func (nopGauge) IncViewers() {}
func (nopGauge) DecViewers() {}

// ViewServer 对外提供 websocket 视图推送和 HTTP 接口
type ViewServer struct {
	addr           string
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	account        *session.Account
	cache          *refresh.Cache
	trigger        Triggerer
	dispatcher     Dispatcher
	broadcaster    *broadcast.ViewBroadcaster
	viewers        ViewerGauge
	httpServer     *http.Server
	mutex          sync.Mutex
	shutdownChan   chan struct{}
}

func NewViewServer(addr string, sessionManager *session.Manager, account *session.Account, cache *refresh.Cache,
	trigger Triggerer, dispatcher Dispatcher, broadcaster *broadcast.ViewBroadcaster) *ViewServer {
	s := &ViewServer{
		addr:           addr,
		sessionManager: sessionManager,
		account:        account,
		cache:          cache,
		trigger:        trigger,
		dispatcher:     dispatcher,
		broadcaster:    broadcaster,
		viewers:        nopGauge{},
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	return s
}

// SetViewerGauge 设置在线人数指标
func (s *ViewServer) SetViewerGauge(g ViewerGauge) {
	if g != nil {
		s.viewers = g
	}
}

// Handler returns the HTTP routes.
func (s *ViewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/view", s.handleView)
	mux.HandleFunc("/identity", s.handleIdentity)
	mux.HandleFunc("/action", s.handleAction)
	mux.HandleFunc("/refresh", s.handleRefresh)
	return mux
}

func (s *ViewServer) Start() error {
	s.mutex.Lock()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	srv := s.httpServer
	s.mutex.Unlock()

	logger.Log.Infof("View server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *ViewServer) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
	for _, sess := range s.sessionManager.All() {
		_ = sess.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *ViewServer) currentView() view.ViewModel {
	actor, identified := s.account.Current()
	return view.Build(s.cache.Snapshot(), actor, identified)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnw("write response failed", "error", err)
	}
}

func (s *ViewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"generation": snap.Generation,
		"viewers":    s.sessionManager.Count(),
	})
}

func (s *ViewServer) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := view.Render(w, s.currentView()); err != nil {
			logger.Log.Warnw("render view failed", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, s.currentView())
}

func (s *ViewServer) handleIdentity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		actor, identified := s.account.Current()
		writeJSON(w, http.StatusOK, map[string]interface{}{"address": actor, "identified": identified})
	case http.MethodPost:
		var req network.IdentityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		changed := s.account.Set(models.Identity(req.Address))
		writeJSON(w, http.StatusOK, map[string]interface{}{"changed": changed})
	case http.MethodDelete:
		changed := s.account.Clear()
		writeJSON(w, http.StatusOK, map[string]interface{}{"changed": changed})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *ViewServer) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req network.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	result, err := s.perform(r.Context(), req)
	writeJSON(w, actionStatus(err), result)
}

// actionStatus maps an action error to an HTTP status. Only ledger transport
// failures are reported as 502.
func actionStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrIdentityAbsent):
		return http.StatusPreconditionFailed
	case ledger.IsRejected(err):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *ViewServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.trigger.Trigger(refresh.ReasonManual)
	w.WriteHeader(http.StatusAccepted)
}

// perform 执行一次操作，结果只说明写入是否完成以及随后的刷新
func (s *ViewServer) perform(ctx context.Context, req network.ActionRequest) (network.ActionResult, error) {
	result := network.ActionResult{Type: req.Type}
	action, ok := state.ParseAction(req.Type)
	if !ok {
		result.Error = services.ErrUnknownAction.Error()
		return result, services.ErrUnknownAction
	}
	refreshed, err := s.dispatcher.Dispatch(ctx, action)
	result.Refreshed = refreshed
	if err != nil {
		result.Rejected = ledger.IsRejected(err)
		result.Error = err.Error()
		if result.Rejected {
			result.Error = ledger.Reason(err)
		}
	}
	return result, err
}

func (s *ViewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *ViewServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(HeartbeatTimeout)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.viewers.IncViewers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.viewers.DecViewers()
		wsConn.Close()
	}()

	// 新连接先收到当前视图
	if data, err := s.broadcaster.Encode(s.cache.Snapshot()); err == nil {
		if err := sess.Send(network.MsgTypeView, data); err != nil {
			return
		}
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *ViewServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
		sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeSetIdentity:
		s.handleSetIdentity(sess, packet)
	case network.MsgTypeAction:
		s.handleActionPacket(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		s.sendError(sess, "unknown message type")
	}
}

func (s *ViewServer) handleSetIdentity(sess *session.Session, packet *network.Packet) {
	var req network.IdentityRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "invalid identity request")
		return
	}
	if !s.account.Set(models.Identity(req.Address)) {
		// 没有变化时直接回当前视图
		if data, err := s.broadcaster.Encode(s.cache.Snapshot()); err == nil {
			s.broadcaster.BroadcastToSession(sess.GetID(), network.MsgTypeView, data)
		}
	}
}

func (s *ViewServer) handleActionPacket(sess *session.Session, packet *network.Packet) {
	var req network.ActionRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "invalid action request")
		return
	}
	result, _ := s.perform(context.Background(), req)
	logger.Log.Infow("action handled", "session", sess.GetID(), "type", req.Type,
		"refreshed", result.Refreshed, "error", result.Error)
	data, _ := json.Marshal(result)
	sess.Send(network.MsgTypeActionResult, data)
}

func (s *ViewServer) sendError(sess *session.Session, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	sess.Send(network.MsgTypeError, data)
}

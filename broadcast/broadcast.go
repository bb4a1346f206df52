// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"

	"github.com/wfunc/dilemmaview/logger"
	"github.com/wfunc/dilemmaview/network"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/session"
	"github.com/wfunc/dilemmaview/view"
)

// 广播接口
type Broadcaster interface {
	BroadcastToAll(msgID uint16, data []byte) error
	BroadcastToSession(sessionID string, msgID uint16, data []byte) error
}

// ViewBroadcaster 把每个已发布的快照渲染成视图推送给所有连接
type ViewBroadcaster struct {
	sessionManager *session.Manager
	account        *session.Account
}

func NewViewBroadcaster(sessionManager *session.Manager, account *session.Account) *ViewBroadcaster {
	return &ViewBroadcaster{
		sessionManager: sessionManager,
		account:        account,
	}
}

// Encode builds the view for the current identity and marshals it.
func (b *ViewBroadcaster) Encode(snap refresh.Snapshot) ([]byte, error) {
	actor, identified := b.account.Current()
	return json.Marshal(view.Build(snap, actor, identified))
}

// Publish 可直接注册为 Scheduler.OnPublish 回调
func (b *ViewBroadcaster) Publish(snap refresh.Snapshot) {
	data, err := b.Encode(snap)
	if err != nil {
		logger.Log.Errorw("encode view failed", "generation", snap.Generation, "error", err)
		return
	}
	if err := b.BroadcastToAll(network.MsgTypeView, data); err != nil {
		logger.Log.Warnw("broadcast view failed", "generation", snap.Generation, "error", err)
	}
}

func (b *ViewBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	// Get a thread-safe copy of the sessions
	for _, s := range b.sessionManager.All() {
		if err := s.Send(msgID, data); err != nil {
			b.drop(s, err)
		}
	}
	return nil
}

func (b *ViewBroadcaster) BroadcastToSession(sessionID string, msgID uint16, data []byte) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.Send(msgID, data); err != nil {
		b.drop(s, err)
		return err
	}
	return nil
}

// drop 发送失败的连接视为已断开
func (b *ViewBroadcaster) drop(s *session.Session, err error) {
	logger.Log.Infow("dropping viewer", "session", s.ID, "error", err)
	b.sessionManager.Remove(s.ID)
	_ = s.Close()
}

package network

const (
	MsgTypeHeartbeat    = 1
	MsgTypeSetIdentity  = 101
	MsgTypeAction       = 201
	MsgTypeActionResult = 202
	MsgTypeView         = 301
	MsgTypeError        = 500
)

// HeaderSize 2字节消息ID + 4字节数据长度
const HeaderSize = 6

// ActionRequest 客户端发起的操作
type ActionRequest struct {
	Type string `json:"type"` // join / cooperate / defect / withdraw
}

// ActionResult 操作结果
type ActionResult struct {
	Type      string `json:"type"`
	Refreshed bool   `json:"refreshed"`
	Rejected  bool   `json:"rejected,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IdentityRequest 设置或清除当前连接账户
type IdentityRequest struct {
	Address string `json:"address"`
}

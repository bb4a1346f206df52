package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"strings"
	"time"

	"github.com/wfunc/dilemmaview/decode"
	"github.com/wfunc/dilemmaview/ledger"
	"github.com/wfunc/dilemmaview/logger"
	"github.com/wfunc/dilemmaview/models"
)

// ServiceName 注册到 net/rpc 的服务名
const ServiceName = "Ledger"

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and exposes backend as the Ledger service.
func NewServer(addr string, backend ledger.Backend, callTimeout time.Duration) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, NewLedgerService(backend, callTimeout)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("Ledger RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("Ledger RPC listener closed.")
				return
			}
			logger.Log.Errorf("Ledger RPC accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping ledger RPC server.")
		s.listener.Close()
	}
}

// ReadArgs 读请求参数；gob 要求至少一个导出字段
type ReadArgs struct {
	From string
}

// Ack 写操作完成的回执
type Ack struct {
	Final bool
}

type JoinArgs struct {
	Actor string
	Stake string
}

type DecisionArgs struct {
	Actor     string
	Cooperate bool
}

type WithdrawArgs struct {
	Actor string
}

// LedgerService is the struct that exposes RPC methods. Method signatures
// follow net/rpc: exported method, pointer reply, error return.
type LedgerService struct {
	backend ledger.Backend
	timeout time.Duration
}

func NewLedgerService(backend ledger.Backend, timeout time.Duration) *LedgerService {
	return &LedgerService{backend: backend, timeout: timeout}
}

func (s *LedgerService) context() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *LedgerService) GetPlayersByRooms(_ *ReadArgs, reply *models.PlayersByRoomsResult) error {
	ctx, cancel := s.context()
	defer cancel()
	res, err := s.backend.GetPlayersByRooms(ctx)
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

func (s *LedgerService) GetRanking(_ *ReadArgs, reply *models.RankingResult) error {
	ctx, cancel := s.context()
	defer cancel()
	res, err := s.backend.GetRanking(ctx)
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

func (s *LedgerService) GetPlayers(_ *ReadArgs, reply *models.PlayersResult) error {
	ctx, cancel := s.context()
	defer cancel()
	res, err := s.backend.GetPlayers(ctx)
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

func (s *LedgerService) GetContractBalance(_ *ReadArgs, reply *models.BalanceResult) error {
	ctx, cancel := s.context()
	defer cancel()
	res, err := s.backend.GetContractBalance(ctx)
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

func (s *LedgerService) JoinGame(args *JoinArgs, reply *Ack) error {
	stake, err := decode.Stake(args.Stake)
	if err != nil {
		return ledger.Reject("invalid stake: %v", err)
	}
	ctx, cancel := s.context()
	defer cancel()
	if err := s.backend.JoinGame(ctx, models.Identity(args.Actor), stake); err != nil {
		return err
	}
	reply.Final = true
	return nil
}

func (s *LedgerService) MakeDecision(args *DecisionArgs, reply *Ack) error {
	ctx, cancel := s.context()
	defer cancel()
	if err := s.backend.MakeDecision(ctx, models.Identity(args.Actor), args.Cooperate); err != nil {
		return err
	}
	reply.Final = true
	return nil
}

func (s *LedgerService) Withdraw(args *WithdrawArgs, reply *Ack) error {
	ctx, cancel := s.context()
	defer cancel()
	if err := s.backend.Withdraw(ctx, models.Identity(args.Actor)); err != nil {
		return err
	}
	reply.Final = true
	return nil
}

// Client 通过 net/rpc 访问账本，实现 ledger.Backend
type Client struct {
	client *rpc.Client
}

// Dial connects to a Ledger RPC server.
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// call issues one RPC and waits for it or for ctx. An abandoned call still
// completes on the server.
func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	call := c.client.Go(ServiceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return mapError(call.Error)
	}
}

// mapError restores rejections that crossed the wire as text.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var serverErr rpc.ServerError
	if errors.As(err, &serverErr) {
		msg := string(serverErr)
		prefix := ledger.ErrWriteRejected.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return ledger.Reject("%s", strings.TrimPrefix(msg, prefix))
		}
	}
	return err
}

func (c *Client) GetPlayersByRooms(ctx context.Context) (models.PlayersByRoomsResult, error) {
	var reply models.PlayersByRoomsResult
	err := c.call(ctx, "GetPlayersByRooms", &ReadArgs{}, &reply)
	return reply, err
}

func (c *Client) GetRanking(ctx context.Context) (models.RankingResult, error) {
	var reply models.RankingResult
	err := c.call(ctx, "GetRanking", &ReadArgs{}, &reply)
	return reply, err
}

func (c *Client) GetPlayers(ctx context.Context) (models.PlayersResult, error) {
	var reply models.PlayersResult
	err := c.call(ctx, "GetPlayers", &ReadArgs{}, &reply)
	return reply, err
}

func (c *Client) GetContractBalance(ctx context.Context) (models.BalanceResult, error) {
	var reply models.BalanceResult
	err := c.call(ctx, "GetContractBalance", &ReadArgs{}, &reply)
	return reply, err
}

func (c *Client) JoinGame(ctx context.Context, actor models.Identity, stake models.Stake) error {
	return c.call(ctx, "JoinGame", &JoinArgs{Actor: string(actor), Stake: stake.String()}, &Ack{})
}

func (c *Client) MakeDecision(ctx context.Context, actor models.Identity, cooperate bool) error {
	return c.call(ctx, "MakeDecision", &DecisionArgs{Actor: string(actor), Cooperate: cooperate}, &Ack{})
}

func (c *Client) Withdraw(ctx context.Context, actor models.Identity) error {
	return c.call(ctx, "Withdraw", &WithdrawArgs{Actor: string(actor)}, &Ack{})
}

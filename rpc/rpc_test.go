package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/dilemmaview/ledger"
)

var testStake = decimal.NewFromInt(1000000000)

func startTestServer(t *testing.T) (*ledger.Memory, *Client) {
	t.Helper()
	mem := ledger.NewMemory(testStake)
	srv, err := NewServer("127.0.0.1:0", mem, time.Second)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := Dial(srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return mem, client
}

func TestClient_ReadsAndWrites(t *testing.T) {
	_, client := startTestServer(t)
	l := ledger.NewAdapter(client)
	ctx := context.Background()

	players, err := l.PlayersByRooms(ctx)
	if err != nil {
		t.Fatalf("PlayersByRooms on empty ledger failed: %v", err)
	}
	if len(players) != 0 {
		t.Errorf("Expected no players, got %d", len(players))
	}

	if err := l.JoinGame(ctx, "0xA", testStake); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	if err := l.JoinGame(ctx, "0xB", testStake); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}

	players, err = l.PlayersByRooms(ctx)
	if err != nil {
		t.Fatalf("PlayersByRooms failed: %v", err)
	}
	if len(players) != 2 || players[1].Address != "0xB" || !players[1].StakeBalance.Equal(testStake) {
		t.Errorf("Unexpected players: %+v", players)
	}

	ranking, err := l.Ranking(ctx)
	if err != nil || len(ranking) != 2 {
		t.Errorf("Expected 2 ranking entries, got %d (%v)", len(ranking), err)
	}

	list, err := l.Players(ctx)
	if err != nil || len(list) != 2 {
		t.Errorf("Expected 2 listed players, got %d (%v)", len(list), err)
	}

	balance, err := l.ContractBalance(ctx)
	if err != nil {
		t.Fatalf("ContractBalance failed: %v", err)
	}
	if !balance.Equal(testStake.Mul(decimal.NewFromInt(2))) {
		t.Errorf("Expected 2 stakes, got %s", balance)
	}

	if err := l.MakeDecision(ctx, "0xA", true); err != nil {
		t.Errorf("MakeDecision failed: %v", err)
	}
	if err := l.Withdraw(ctx, "0xB"); err != nil {
		t.Errorf("Withdraw failed: %v", err)
	}
}

func TestClient_RejectionCrossesWire(t *testing.T) {
	_, client := startTestServer(t)
	ctx := context.Background()

	err := client.Withdraw(ctx, "0xNobody")
	if !ledger.IsRejected(err) {
		t.Fatalf("Expected rejection, got %v", err)
	}
	if ledger.Reason(err) != "not a player" {
		t.Errorf("Unexpected reason %q", ledger.Reason(err))
	}

	err = client.JoinGame(ctx, "0xA", decimal.NewFromInt(5))
	if !ledger.IsRejected(err) {
		t.Errorf("Expected wrong-stake rejection, got %v", err)
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	_, client := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetRanking(ctx)
	if !errors.Is(err, context.Canceled) && err != nil {
		t.Errorf("Expected context.Canceled or success, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	if mapError(nil) != nil {
		t.Error("nil should map to nil")
	}
	plain := errors.New("connection reset")
	if mapError(plain) != plain {
		t.Error("Non-server errors should pass through")
	}
}

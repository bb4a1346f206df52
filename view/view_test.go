package view

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wfunc/dilemmaview/decode"
	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/state"
)

func gwei(n int64) models.Stake {
	return decimal.NewFromInt(n).Shift(9)
}

func testSnapshot() refresh.Snapshot {
	return refresh.Snapshot{
		Generation: 3,
		PlayersByRooms: refresh.SlotValue[[]models.Player]{Valid: true, Value: []models.Player{
			{Address: "0xAAA", StakeBalance: gwei(1), RoomID: "1", InGame: true},
			{Address: "0xBBB", StakeBalance: gwei(2), RoomID: "2", InGame: false},
			{Address: "0xCCC", StakeBalance: gwei(3), RoomID: "1", InGame: true},
		}},
		Ranking: refresh.SlotValue[[]models.RankingEntry]{Valid: true, Value: []models.RankingEntry{
			{Address: "0xX", StakeBalance: decimal.NewFromInt(10)},
			{Address: "0xY", StakeBalance: decimal.NewFromInt(50)},
			{Address: "0xZ", StakeBalance: decimal.NewFromInt(50)},
		}},
		ContractBalance: refresh.SlotValue[models.Stake]{Valid: true, Value: gwei(6)},
	}
}

func TestBuild_PairedSelf(t *testing.T) {
	vm := Build(testSnapshot(), "0xccc", true)

	if vm.Self == nil || vm.Self.Address != "0xCCC" {
		t.Fatalf("Expected self 0xCCC, got %+v", vm.Self)
	}
	if vm.Phase != state.PhasePaired {
		t.Errorf("Expected paired phase, got %s", vm.Phase)
	}
	if len(vm.Actions) != 3 {
		t.Errorf("Expected cooperate, defect and withdraw, got %v", vm.Actions)
	}

	if len(vm.Rooms) != 2 || vm.Rooms[0].RoomID != "1" || vm.Rooms[1].RoomID != "2" {
		t.Fatalf("Unexpected rooms: %+v", vm.Rooms)
	}
	r1 := vm.Rooms[0]
	if r1.Left.Address != "0xAAA" || r1.Right.Address != "0xCCC" || !r1.Right.Self || r1.Left.Self {
		t.Errorf("Unexpected room 1: left %+v right %+v", r1.Left, r1.Right)
	}
	if vm.Rooms[1].Right != nil || vm.Rooms[1].Paired {
		t.Error("Room 2 should be waiting")
	}
	if vm.DuelsNotice != "" {
		t.Error("No duels notice expected when rooms exist")
	}

	got := ""
	for _, e := range vm.Ranking {
		got += string(e.Address)
	}
	if got != "0xY0xZ0xX" || vm.Ranking[0].Position != 1 {
		t.Errorf("Expected ranking Y Z X, got %s", got)
	}
	if vm.ContractBalance == nil || !vm.ContractBalance.Equal(gwei(6)) {
		t.Errorf("Unexpected contract balance %v", vm.ContractBalance)
	}
}

func TestBuild_Unidentified(t *testing.T) {
	vm := Build(testSnapshot(), "", false)
	if vm.Self != nil || vm.Phase != state.PhaseUnidentified || len(vm.Actions) != 0 {
		t.Errorf("Unidentified view should offer nothing, got %+v", vm)
	}
}

func TestBuild_SpectatorMayJoin(t *testing.T) {
	vm := Build(testSnapshot(), "0xDDD", true)
	if vm.Self != nil || vm.Phase != state.PhaseSpectator {
		t.Fatalf("Expected spectator, got %s", vm.Phase)
	}
	if len(vm.Actions) != 1 || vm.Actions[0] != state.ActionJoin {
		t.Errorf("Expected join only, got %v", vm.Actions)
	}
}

func TestBuild_EmptyStates(t *testing.T) {
	vm := Build(refresh.Snapshot{}, "0xA", true)
	if vm.RankingNotice != NoRankingNotice || vm.Ranking != nil {
		t.Errorf("Expected ranking notice, got %q %v", vm.RankingNotice, vm.Ranking)
	}
	if vm.DuelsNotice != NoDuelsNotice || vm.Rooms != nil {
		t.Errorf("Expected duels notice, got %q %v", vm.DuelsNotice, vm.Rooms)
	}
	if vm.ContractBalance != nil {
		t.Error("No contract balance expected without data")
	}
}

func TestBuild_DecodeFailureRendersNoData(t *testing.T) {
	snap := testSnapshot()
	snap.PlayersByRooms = refresh.SlotValue[[]models.Player]{
		Valid: false,
		Err:   &decode.DecodeError{Query: "getPlayersByRooms", Index: -1},
	}
	snap.Ranking.Err = errors.New("timeout")

	vm := Build(snap, "0xAAA", true)
	if vm.Self != nil || vm.DuelsNotice != NoDuelsNotice {
		t.Errorf("Decode failure should render as no data, got self %+v rooms %v", vm.Self, vm.Rooms)
	}
	if len(vm.Ranking) != 3 {
		t.Error("Stale ranking should still render")
	}
	if strings.Join(vm.Stale, ",") != "playersByRooms,ranking" {
		t.Errorf("Unexpected stale slots %v", vm.Stale)
	}
}

func TestBuild_OverfullRoom(t *testing.T) {
	snap := refresh.Snapshot{PlayersByRooms: refresh.SlotValue[[]models.Player]{Valid: true, Value: []models.Player{
		{Address: "0xA", RoomID: "1"}, {Address: "0xB", RoomID: "1"}, {Address: "0xC", RoomID: "1"},
	}}}
	vm := Build(snap, "", false)
	if vm.Rooms[0].Extra != 1 || vm.Rooms[0].Right.Address != "0xB" {
		t.Errorf("Unexpected overfull room view %+v", vm.Rooms[0])
	}
}

func TestRender_EmptyStates(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, Build(refresh.Snapshot{}, "", false)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, NoRankingNotice) {
		t.Error("Render should show the no ranking notice")
	}
	if !strings.Contains(out, NoDuelsNotice) {
		t.Error("Render should show the no duels notice")
	}
	if strings.Contains(out, "Room ") {
		t.Error("Render should not show room artifacts without rooms")
	}
}

func TestRender_Populated(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, Build(testSnapshot(), "0xAAA", true))
	out := buf.String()

	for _, want := range []string{
		"Contract balance: 6 GWEI",
		"Your balance: 1 GWEI",
		"[cooperate] [defect] [withdraw]",
		"Room 1",
		"0xAAA * 0.000000001 ETH  VS  0xCCC 0.000000003 ETH",
		"(waiting) 0 ETH",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render output missing %q:\n%s", want, out)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := FormatGwei(gwei(1)); got != "1" {
		t.Errorf("Expected 1 gwei, got %s", got)
	}
	if got := FormatEther(decimal.NewFromInt(1500000000000000000)); got != "1.5" {
		t.Errorf("Expected 1.5 ETH, got %s", got)
	}
}

package decode

import (
	"errors"
	"testing"

	"github.com/wfunc/dilemmaview/models"
)

func TestPlayers_IndexCorrespondence(t *testing.T) {
	raw := models.PlayersByRoomsResult{
		Addresses: []string{"0xA", "0xB", "0xC"},
		Balances:  []string{"1000000000", "2", "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
		RoomIDs:   []string{"1", "2", "1"},
		InGames:   []bool{true, false, true},
	}

	players, err := Players(raw)
	if err != nil {
		t.Fatalf("Players returned error: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("Expected 3 players, got %d", len(players))
	}

	for i, p := range players {
		if string(p.Address) != raw.Addresses[i] {
			t.Errorf("index %d: expected address %s, got %s", i, raw.Addresses[i], p.Address)
		}
		if p.StakeBalance.String() != raw.Balances[i] {
			t.Errorf("index %d: expected balance %s, got %s", i, raw.Balances[i], p.StakeBalance.String())
		}
		if string(p.RoomID) != raw.RoomIDs[i] {
			t.Errorf("index %d: expected room %s, got %s", i, raw.RoomIDs[i], p.RoomID)
		}
		if p.InGame != raw.InGames[i] {
			t.Errorf("index %d: expected inGame %v, got %v", i, raw.InGames[i], p.InGame)
		}
	}
}

func TestPlayers_LengthMismatch(t *testing.T) {
	cases := []struct {
		name string
		raw  models.PlayersByRoomsResult
	}{
		{"short balances", models.PlayersByRoomsResult{
			Addresses: []string{"0xA", "0xB"},
			Balances:  []string{"1"},
			RoomIDs:   []string{"1", "1"},
			InGames:   []bool{true, true},
		}},
		{"missing inGames", models.PlayersByRoomsResult{
			Addresses: []string{"0xA"},
			Balances:  []string{"1"},
			RoomIDs:   []string{"1"},
		}},
		{"extra room id", models.PlayersByRoomsResult{
			Balances: nil,
			RoomIDs:  []string{"1"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			players, err := Players(tc.raw)
			if err == nil {
				t.Fatal("Expected a decode error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Expected *DecodeError, got %T", err)
			}
			if de.Index != -1 {
				t.Errorf("Expected length mismatch (index -1), got index %d", de.Index)
			}
			if players != nil {
				t.Errorf("Expected no partial records, got %d", len(players))
			}
		})
	}
}

func TestPlayers_Empty(t *testing.T) {
	players, err := Players(models.PlayersByRoomsResult{})
	if err != nil {
		t.Fatalf("Empty input should not fail: %v", err)
	}
	if players == nil || len(players) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", players)
	}
}

func TestPlayers_BadBalance(t *testing.T) {
	for _, bad := range []string{"-1", "1.5", "ten", "", "1e3", "1.0", "+5", "-0", " 7", "0x10"} {
		_, err := Players(models.PlayersByRoomsResult{
			Addresses: []string{"0xA"},
			Balances:  []string{bad},
			RoomIDs:   []string{"1"},
			InGames:   []bool{true},
		})
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("balance %q: expected *DecodeError, got %v", bad, err)
			continue
		}
		if de.Index != 0 {
			t.Errorf("balance %q: expected index 0, got %d", bad, de.Index)
		}
	}
}

func TestRanking(t *testing.T) {
	entries, err := Ranking(models.RankingResult{
		Addresses: []string{"0xX", "0xY"},
		Balances:  []string{"10", "50"},
	})
	if err != nil {
		t.Fatalf("Ranking returned error: %v", err)
	}
	if len(entries) != 2 || entries[1].Address != "0xY" || entries[1].StakeBalance.IntPart() != 50 {
		t.Errorf("Unexpected entries: %+v", entries)
	}

	if _, err := Ranking(models.RankingResult{Addresses: []string{"0xX"}}); err == nil {
		t.Error("Expected mismatch error for ranking arrays")
	}
}

func TestDecodeError_Message(t *testing.T) {
	err := &DecodeError{
		Query:  "getRanking",
		Fields: []Field{{Name: "addresses", Len: 2}, {Name: "balances", Len: 1}},
		Index:  -1,
	}
	want := "decode getRanking: array length mismatch (addresses=2, balances=1)"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestStake(t *testing.T) {
	for _, ok := range []string{"0", "007", "1000000000"} {
		if _, err := Stake(ok); err != nil {
			t.Errorf("Stake(%q) should parse: %v", ok, err)
		}
	}
	d, _ := Stake("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if d.String() != "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
		t.Errorf("Large balance lost precision: %s", d.String())
	}
}

package session

import (
	"testing"
	"time"

	"github.com/wfunc/dilemmaview/models"
)

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for identity change")
	}
	return Change{}
}

func expectNone(t *testing.T, ch <-chan Change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("Expected no change, got %+v", c)
	default:
	}
}

func TestAccount_SetAndClear(t *testing.T) {
	account := NewAccount()
	changes := account.Subscribe()

	if _, ok := account.Current(); ok {
		t.Fatal("New account should be unidentified")
	}

	if !account.Set("0xAbC") {
		t.Fatal("First Set should report a change")
	}
	c := receive(t, changes)
	if !c.Identified || c.Current != "0xAbC" || c.Previous != "" {
		t.Errorf("Unexpected change: %+v", c)
	}

	if account.Set("0xabc") {
		t.Error("Setting the same address in another case should not be a change")
	}
	expectNone(t, changes)

	account.Set("0xdef")
	c = receive(t, changes)
	if c.Previous != "0xAbC" || c.Current != "0xdef" {
		t.Errorf("Unexpected change: %+v", c)
	}

	if !account.Clear() {
		t.Fatal("Clear should report a change")
	}
	c = receive(t, changes)
	if c.Identified || c.Previous != "0xdef" {
		t.Errorf("Unexpected change: %+v", c)
	}
	if account.Clear() {
		t.Error("Clearing twice should not be a change")
	}
}

func TestAccount_SetEmptyClears(t *testing.T) {
	account := NewAccount()
	account.Set("0xA")
	account.Set("  ")
	if _, ok := account.Current(); ok {
		t.Error("Setting a blank address should disconnect")
	}
}

func TestAccount_SlowSubscriberSeesLatest(t *testing.T) {
	account := NewAccount()
	changes := account.Subscribe()

	account.Set(models.Identity("0x1"))
	account.Set(models.Identity("0x2"))
	account.Set(models.Identity("0x3"))

	c := receive(t, changes)
	if c.Current != "0x3" {
		t.Errorf("Expected latest change 0x3, got %+v", c)
	}
	expectNone(t, changes)
}

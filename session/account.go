// session/account.go
package session

import (
	"sync"

	"github.com/wfunc/dilemmaview/models"
)

// Change 当前连接账户的变化
type Change struct {
	Previous   models.Identity
	Current    models.Identity
	Identified bool
}

// Account holds the address supplied by the wallet connector. It is the only
// non-action source of refresh triggers.
type Account struct {
	address     models.Identity
	identified  bool
	subscribers []chan Change
	mutex       sync.RWMutex
}

func NewAccount() *Account {
	return &Account{}
}

// Current returns the connected address and whether one is connected.
func (a *Account) Current() (models.Identity, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.address, a.identified
}

// Set 连接账户；与当前地址规范化后相同时不触发变化
func (a *Account) Set(address models.Identity) bool {
	if address.Canonical() == "" {
		return a.Clear()
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.identified && a.address.Equal(address) {
		return false
	}
	change := Change{Previous: a.address, Current: address, Identified: true}
	a.address = address
	a.identified = true
	a.notify(change)
	return true
}

// Clear 断开账户
func (a *Account) Clear() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.identified {
		return false
	}
	change := Change{Previous: a.address}
	a.address = ""
	a.identified = false
	a.notify(change)
	return true
}

// Subscribe returns a channel that receives identity changes. A slow reader
// only ever sees the latest pending change.
func (a *Account) Subscribe() <-chan Change {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	ch := make(chan Change, 1)
	a.subscribers = append(a.subscribers, ch)
	return ch
}

// notify must be called with the mutex held.
func (a *Account) notify(change Change) {
	for _, ch := range a.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- change
	}
}

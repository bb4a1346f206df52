// session/resolver.go
package session

import (
	"github.com/wfunc/dilemmaview/models"
)

// Resolve 在房间快照中找到当前账户的记录
//
// Addresses are compared after canonicalization. The first match wins; a nil
// actor or no match resolves to none.
func Resolve(players []models.Player, actor *models.Identity) (models.Player, bool) {
	if actor == nil {
		return models.Player{}, false
	}
	want := actor.Canonical()
	if want == "" {
		return models.Player{}, false
	}
	for _, p := range players {
		if p.Address.Canonical() == want {
			return p, true
		}
	}
	return models.Player{}, false
}

// state/state.go
package state

import (
	"fmt"

	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/room"
)

// Phase 当前账户相对于账本的阶段
type Phase int

const (
	PhaseUnidentified Phase = iota
	PhaseSpectator
	PhaseWaiting
	PhasePaired
)

func (p Phase) String() string {
	switch p {
	case PhaseUnidentified:
		return "unidentified"
	case PhaseSpectator:
		return "spectator"
	case PhaseWaiting:
		return "waiting"
	case PhasePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name. Unknown names are an error.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseUnidentified, PhaseSpectator, PhaseWaiting, PhasePaired} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Action 可以向账本提交的操作
type Action string

const (
	ActionJoin      Action = "join"
	ActionCooperate Action = "cooperate"
	ActionDefect    Action = "defect"
	ActionWithdraw  Action = "withdraw"
)

// ParseAction maps a client action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionJoin, ActionCooperate, ActionDefect, ActionWithdraw:
		return a, true
	}
	return "", false
}

// PhaseOf derives the phase from the resolved self record.
func PhaseOf(identified bool, self *models.Player, pairings *room.Pairings) Phase {
	if !identified {
		return PhaseUnidentified
	}
	if self == nil {
		return PhaseSpectator
	}
	if pairing, ok := pairings.Get(self.RoomID); ok && pairing.Paired() {
		return PhasePaired
	}
	if self.InGame {
		return PhasePaired
	}
	return PhaseWaiting
}

// Offered lists the actions presented for a phase. Nothing is offered
// without an identity.
func Offered(p Phase) []Action {
	switch p {
	case PhaseSpectator:
		return []Action{ActionJoin}
	case PhaseWaiting:
		return []Action{ActionWithdraw}
	case PhasePaired:
		return []Action{ActionCooperate, ActionDefect, ActionWithdraw}
	default:
		return nil
	}
}

// Allows reports whether a is offered in phase p.
func Allows(p Phase, a Action) bool {
	for _, offered := range Offered(p) {
		if offered == a {
			return true
		}
	}
	return false
}

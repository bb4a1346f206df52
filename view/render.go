// view/render.go
package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/wfunc/dilemmaview/models"
)

// FormatGwei 以 gwei 显示最小单位金额
func FormatGwei(amount models.Stake) string {
	return amount.Shift(-9).String()
}

// FormatEther 以 ETH 显示最小单位金额
func FormatEther(amount models.Stake) string {
	return amount.Shift(-18).String()
}

// Render writes a plain-text rendering of vm.
func Render(w io.Writer, vm ViewModel) error {
	var b strings.Builder

	b.WriteString("Prisoners Dilemma Game\n")
	if vm.ContractBalance != nil {
		fmt.Fprintf(&b, "Contract balance: %s GWEI\n", FormatGwei(*vm.ContractBalance))
	} else {
		b.WriteString("Contract balance: 0 GWEI\n")
	}

	switch {
	case !vm.Identified:
		b.WriteString("Not connected\n")
	case vm.Self != nil:
		fmt.Fprintf(&b, "Your balance: %s GWEI (%s, room %s)\n", FormatGwei(vm.Self.StakeBalance), vm.Phase, vm.Self.RoomID)
	default:
		fmt.Fprintf(&b, "Connected as %s\n", vm.Identity)
	}
	if len(vm.Actions) > 0 {
		names := make([]string, len(vm.Actions))
		for i, a := range vm.Actions {
			names[i] = "[" + string(a) + "]"
		}
		fmt.Fprintf(&b, "Actions: %s\n", strings.Join(names, " "))
	}

	b.WriteString("\nRanking\n")
	if vm.RankingNotice != "" {
		b.WriteString(vm.RankingNotice + "\n")
	}
	for _, e := range vm.Ranking {
		fmt.Fprintf(&b, "%3d  %s  %s ETH\n", e.Position, e.Address, FormatEther(e.StakeBalance))
	}

	b.WriteString("\nDuels by Room\n")
	if vm.DuelsNotice != "" {
		b.WriteString(vm.DuelsNotice + "\n")
	}
	for _, r := range vm.Rooms {
		fmt.Fprintf(&b, "Room %s\n  %s  VS  %s\n", r.RoomID, side(r.Left), side(r.Right))
	}

	if len(vm.Stale) > 0 {
		fmt.Fprintf(&b, "\n(stale: %s)\n", strings.Join(vm.Stale, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func side(o *OccupantView) string {
	if o == nil {
		return "(waiting) 0 ETH"
	}
	marker := ""
	if o.Self {
		marker = " *"
	}
	return fmt.Sprintf("%s%s %s ETH", o.Address, marker, FormatEther(o.StakeBalance))
}

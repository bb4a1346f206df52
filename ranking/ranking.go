// ranking/ranking.go
package ranking

import (
	"sort"

	"github.com/wfunc/dilemmaview/models"
)

// Compute 按余额降序排列排行榜
//
// The input is not modified. Balances are compared exactly; entries with
// equal balances keep their input order.
func Compute(entries []models.RankingEntry) []models.RankingEntry {
	sorted := make([]models.RankingEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StakeBalance.Cmp(sorted[j].StakeBalance) > 0
	})
	return sorted
}

// Positioned 带名次的排行榜条目
type Positioned struct {
	Position int `json:"position"`
	models.RankingEntry
}

// WithPositions numbers an already sorted ranking from 1.
func WithPositions(sorted []models.RankingEntry) []Positioned {
	out := make([]Positioned, len(sorted))
	for i, e := range sorted {
		out[i] = Positioned{Position: i + 1, RankingEntry: e}
	}
	return out
}

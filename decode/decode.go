// decode/decode.go
package decode

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wfunc/dilemmaview/models"
)

// Field 一个并行数组的名称和长度
type Field struct {
	Name string
	Len  int
}

// DecodeError 表示并行数组无法组合成记录
type DecodeError struct {
	Query  string
	Fields []Field
	Index  int // -1 表示长度不一致
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = fmt.Sprintf("%s=%d", f.Name, f.Len)
		}
		return fmt.Sprintf("decode %s: array length mismatch (%s)", e.Query, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("decode %s: index %d: %s", e.Query, e.Index, e.Reason)
}

// Zip builds one record per index across equal-length arrays. build is only
// called once the lengths are known to agree.
func Zip[T any](query string, fields []Field, build func(i int) (T, error)) ([]T, error) {
	n := 0
	if len(fields) > 0 {
		n = fields[0].Len
	}
	for _, f := range fields {
		if f.Len != n {
			return nil, &DecodeError{Query: query, Fields: fields, Index: -1}
		}
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		rec, err := build(i)
		if err != nil {
			return nil, &DecodeError{Query: query, Fields: fields, Index: i, Reason: err.Error()}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Players 解码 getPlayersByRooms 的结果
func Players(raw models.PlayersByRoomsResult) ([]models.Player, error) {
	fields := []Field{
		{Name: "addresses", Len: len(raw.Addresses)},
		{Name: "balances", Len: len(raw.Balances)},
		{Name: "roomIds", Len: len(raw.RoomIDs)},
		{Name: "inGames", Len: len(raw.InGames)},
	}
	return Zip("getPlayersByRooms", fields, func(i int) (models.Player, error) {
		balance, err := Stake(raw.Balances[i])
		if err != nil {
			return models.Player{}, err
		}
		return models.Player{
			Address:      models.Identity(raw.Addresses[i]),
			StakeBalance: balance,
			RoomID:       models.RoomID(raw.RoomIDs[i]),
			InGame:       raw.InGames[i],
		}, nil
	})
}

// Ranking 解码 getRanking 的结果
func Ranking(raw models.RankingResult) ([]models.RankingEntry, error) {
	fields := []Field{
		{Name: "addresses", Len: len(raw.Addresses)},
		{Name: "balances", Len: len(raw.Balances)},
	}
	return Zip("getRanking", fields, func(i int) (models.RankingEntry, error) {
		balance, err := Stake(raw.Balances[i])
		if err != nil {
			return models.RankingEntry{}, err
		}
		return models.RankingEntry{
			Address:      models.Identity(raw.Addresses[i]),
			StakeBalance: balance,
		}, nil
	})
}

// PlayerList 转换 getPlayers 的结果，不做进一步校验
func PlayerList(raw models.PlayersResult) models.PlayerList {
	list := make(models.PlayerList, len(raw.Addresses))
	for i, a := range raw.Addresses {
		list[i] = models.Identity(a)
	}
	return list
}

// Stake parses a base-10 unsigned integer amount. Only plain digits are
// accepted: no sign, fraction or exponent.
func Stake(s string) (models.Stake, error) {
	if !isDigits(s) {
		return decimal.Zero, fmt.Errorf("balance %q is not a base-10 unsigned integer", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %q: %w", s, err)
	}
	return d, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// models/wire.go
package models

// PlayersByRoomsResult getPlayersByRooms 的原始返回：四个按下标对应的数组
type PlayersByRoomsResult struct {
	Addresses []string
	Balances  []string // 十进制整数字符串
	RoomIDs   []string
	InGames   []bool
}

// RankingResult getRanking 的原始返回
type RankingResult struct {
	Addresses []string
	Balances  []string
}

// PlayersResult getPlayers 的原始返回
type PlayersResult struct {
	Addresses []string
}

// BalanceResult getContractBalance 的原始返回
type BalanceResult struct {
	Balance string
}

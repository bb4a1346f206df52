// persistence/interface.go
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/ranking"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/room"
)

// Store 保存已发布的快照历史
type Store interface {
	SaveSnapshot(ctx context.Context, record Record) error
	Latest(ctx context.Context) (*Record, error)
	Close() error
}

// RankingRow 一行排名
type RankingRow struct {
	Position     int
	Address      string
	StakeBalance string
}

// Record is the persisted summary of one published snapshot. Generations
// are only unique within one run of the process.
type Record struct {
	RunID           string
	Generation      uint64
	Identity        string
	ContractBalance string
	PlayerCount     int
	RoomCount       int
	PublishedAt     time.Time
	Ranking         []RankingRow
}

// NewRecord summarizes snap. Slots without data count as empty.
func NewRecord(runID string, snap refresh.Snapshot, identity models.Identity) Record {
	rec := Record{
		RunID:           runID,
		Generation:      snap.Generation,
		Identity:        string(identity.Canonical()),
		ContractBalance: "0",
		PublishedAt:     snap.PublishedAt,
	}
	if snap.ContractBalance.Valid {
		rec.ContractBalance = snap.ContractBalance.Value.String()
	}
	if snap.PlayersByRooms.Valid {
		rec.PlayerCount = len(snap.PlayersByRooms.Value)
		rec.RoomCount = room.Aggregate(snap.PlayersByRooms.Value).Len()
	}
	if snap.Ranking.Valid {
		for _, e := range ranking.WithPositions(ranking.Compute(snap.Ranking.Value)) {
			rec.Ranking = append(rec.Ranking, RankingRow{
				Position:     e.Position,
				Address:      string(e.Address),
				StakeBalance: e.StakeBalance.String(),
			})
		}
	}
	return rec
}

// Noop 不保存任何内容
type Noop struct{}

func (Noop) SaveSnapshot(context.Context, Record) error { return nil }
func (Noop) Latest(context.Context) (*Record, error)    { return nil, ErrRecordNotFound }
func (Noop) Close() error                               { return nil }

// Open 根据驱动名创建存储
func Open(driver string, host string, port int, user, password, dbname string) (Store, error) {
	switch driver {
	case "", "none":
		return Noop{}, nil
	case "gorm":
		return NewGormPostgreSQL(host, port, user, password, dbname)
	case "postgres":
		return NewPostgreSQL(host, port, user, password, dbname)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormSnapshot 一次已发布刷新的记录
type GormSnapshot struct {
	gorm.Model
	RunID           string           `gorm:"size:36;uniqueIndex:idx_run_generation;not null"`
	Generation      uint64           `gorm:"uniqueIndex:idx_run_generation;not null"`
	Identity        string           `gorm:"index"`
	ContractBalance string           `gorm:"not null;default:'0'"`
	PlayerCount     int              `gorm:"default:0"`
	RoomCount       int              `gorm:"default:0"`
	PublishedAt     time.Time        `gorm:"index;not null"`
	Rankings        []GormRankingRow `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

// GormRankingRow 快照中的排名行
type GormRankingRow struct {
	ID           uint   `gorm:"primaryKey"`
	SnapshotID   uint   `gorm:"index;not null"`
	Position     int    `gorm:"not null"`
	Address      string `gorm:"not null"`
	StakeBalance string `gorm:"type:numeric(78,0);not null"`
}

// TableName keeps the table name short and stable.
func (GormRankingRow) TableName() string {
	return "ranking_rows"
}

// TableName keeps the table name short and stable.
func (GormSnapshot) TableName() string {
	return "snapshots"
}

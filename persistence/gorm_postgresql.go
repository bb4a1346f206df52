// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/dilemmaview/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormSnapshot{}, &models.GormRankingRow{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// toGorm 转换为 GORM 模型
func toGorm(rec Record) models.GormSnapshot {
	row := models.GormSnapshot{
		RunID:           rec.RunID,
		Generation:      rec.Generation,
		Identity:        rec.Identity,
		ContractBalance: rec.ContractBalance,
		PlayerCount:     rec.PlayerCount,
		RoomCount:       rec.RoomCount,
		PublishedAt:     rec.PublishedAt,
	}
	for _, r := range rec.Ranking {
		row.Rankings = append(row.Rankings, models.GormRankingRow{
			Position:     r.Position,
			Address:      r.Address,
			StakeBalance: r.StakeBalance,
		})
	}
	return row
}

// SaveSnapshot 保存快照；同一次运行的同一代重复保存时忽略
func (p *GormPostgreSQL) SaveSnapshot(ctx context.Context, rec Record) error {
	row := toGorm(rec)
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("Rankings").Create(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 || len(row.Rankings) == 0 {
			return nil
		}
		for i := range row.Rankings {
			row.Rankings[i].SnapshotID = row.ID
		}
		return tx.Create(&row.Rankings).Error
	})
}

// Latest 加载最近的快照
func (p *GormPostgreSQL) Latest(ctx context.Context) (*Record, error) {
	var row models.GormSnapshot
	err := p.db.WithContext(ctx).
		Preload("Rankings", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("published_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := fromGorm(row)
	return &rec, nil
}

func fromGorm(row models.GormSnapshot) Record {
	rec := Record{
		RunID:           row.RunID,
		Generation:      row.Generation,
		Identity:        row.Identity,
		ContractBalance: row.ContractBalance,
		PlayerCount:     row.PlayerCount,
		RoomCount:       row.RoomCount,
		PublishedAt:     row.PublishedAt,
	}
	for _, r := range row.Rankings {
		rec.Ranking = append(rec.Ranking, RankingRow{
			Position:     r.Position,
			Address:      r.Address,
			StakeBalance: r.StakeBalance,
		})
	}
	return rec
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

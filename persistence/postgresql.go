// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS snapshots (
            id SERIAL PRIMARY KEY,
            run_id VARCHAR(36) NOT NULL,
            generation BIGINT NOT NULL,
            identity VARCHAR(64),
            contract_balance NUMERIC(78,0) NOT NULL DEFAULT 0,
            player_count INT NOT NULL DEFAULT 0,
            room_count INT NOT NULL DEFAULT 0,
            ranking JSONB NOT NULL DEFAULT '[]',
            published_at TIMESTAMP NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (run_id, generation)
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_published_at ON snapshots(published_at)`)
	return err
}

// SaveSnapshot 保存快照；排名以 JSONB 存储，同一次运行的同一代只保存一次
func (p *PostgreSQL) SaveSnapshot(ctx context.Context, rec Record) error {
	rows := rec.Ranking
	if rows == nil {
		rows = []RankingRow{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO snapshots (run_id, generation, identity, contract_balance, player_count, room_count, ranking, published_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (run_id, generation) DO NOTHING
    `, rec.RunID, int64(rec.Generation), rec.Identity, rec.ContractBalance, rec.PlayerCount, rec.RoomCount, data, rec.PublishedAt)
	return err
}

// Latest 加载最近的快照
func (p *PostgreSQL) Latest(ctx context.Context) (*Record, error) {
	var (
		rec  Record
		gen  int64
		data []byte
	)
	err := p.db.QueryRowContext(ctx, `
        SELECT run_id, generation, identity, contract_balance, player_count, room_count, ranking, published_at
        FROM snapshots ORDER BY published_at DESC, id DESC LIMIT 1
    `).Scan(&rec.RunID, &gen, &rec.Identity, &rec.ContractBalance, &rec.PlayerCount, &rec.RoomCount, &data, &rec.PublishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Generation = uint64(gen)
	if err := json.Unmarshal(data, &rec.Ranking); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

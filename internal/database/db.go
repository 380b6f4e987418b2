package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// コネクションプールの上限。APIサーバーとワーカーが同一DBを共有するため
// 片側がプールを食い潰さない値にしている。
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLのコネクションプールを開く。
// sql.Openは接続を試行しないため、実際の疎通確認は呼び出し側でdb.Ping()を行うこと。
// 返される*sql.DBはプロセス全体で共有し、起動時に1回だけ生成する。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresPurchaseRepo はPostgreSQLを使用した購入記録リポジトリ。
type PostgresPurchaseRepo struct {
	db *sql.DB
}

// NewPostgresPurchaseRepo はPostgresPurchaseRepoを生成する。
func NewPostgresPurchaseRepo(db *sql.DB) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

// Exists は(userID, songID)の購入記録が存在するかを返す。
func (r *PostgresPurchaseRepo) Exists(ctx context.Context, userID, songID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE user_id = $1 AND song_id = $2)`,
		userID, songID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase existence: %w", err)
	}
	return exists, nil
}

// Create は購入記録を冪等に作成する。既に存在する場合は何もしない。
func (r *PostgresPurchaseRepo) Create(ctx context.Context, userID, songID int64, priceAtBuy float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO purchases (user_id, song_id, price_at_buy)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, song_id) DO NOTHING`,
		userID, songID, priceAtBuy,
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// ListSongIDsByUser はユーザーが購入済みの楽曲ID集合を返す。
func (r *PostgresPurchaseRepo) ListSongIDsByUser(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT song_id FROM purchases WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	owned := make(map[int64]bool)
	for rows.Next() {
		var songID int64
		if err := rows.Scan(&songID); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		owned[songID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return owned, nil
}

// compile-time interface check
var _ PurchaseRepository = (*PostgresPurchaseRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/otoichi/internal/model"
)

// PostgresPaymentSessionRepo はPostgreSQLを使用した決済セッションリポジトリ。
type PostgresPaymentSessionRepo struct {
	db *sql.DB
}

// NewPostgresPaymentSessionRepo はPostgresPaymentSessionRepoを生成する。
func NewPostgresPaymentSessionRepo(db *sql.DB) *PostgresPaymentSessionRepo {
	return &PostgresPaymentSessionRepo{db: db}
}

// Create は決済セッションを作成する。
func (r *PostgresPaymentSessionRepo) Create(ctx context.Context, ps *model.PaymentSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_sessions (session_id, user_id, song_id, amount, status, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ps.SessionID, ps.UserID, ps.SongID, ps.Amount, ps.Status, ps.Note, ps.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

// FindBySessionID は指定セッションIDの決済セッションを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresPaymentSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	ps := &model.PaymentSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, song_id, amount, status, note, created_at
		 FROM payment_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&ps.SessionID, &ps.UserID, &ps.SongID, &ps.Amount, &ps.Status, &ps.Note, &ps.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment session: %w", err)
	}

	return ps, nil
}

// UpdateStatus はセッションのstatusを更新する。
func (r *PostgresPaymentSessionRepo) UpdateStatus(ctx context.Context, sessionID string, status model.PaymentStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_sessions SET status = $2 WHERE session_id = $1`,
		sessionID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment session status: %w", err)
	}
	return nil
}

// Capture はセッションをcapturedに遷移させ、同一トランザクション内で
// Purchaseレコードを作成する。既にcapturedの場合は(false, nil)を返す。
//
// 並行キャプチャの直列化: UPDATEは対象行をロックするため、同一セッションへの
// 2つ目の呼び出しは勝者のコミットまでブロックし、再評価時にstatus='captured'を
// 観測してsql.ErrNoRowsになる。敗者はPurchase挿入に到達しない。
// さらにUNIQUE(user_id, song_id)へのON CONFLICT DO NOTHINGが、別セッション経由の
// 重複購入も1行に抑える。
func (r *PostgresPaymentSessionRepo) Capture(ctx context.Context, sessionID string, priceAtBuy float64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID, songID int64
	err = tx.QueryRowContext(ctx,
		`UPDATE payment_sessions SET status = $2
		 WHERE session_id = $1 AND status <> $2
		 RETURNING user_id, song_id`,
		sessionID, model.PaymentStatusCaptured,
	).Scan(&userID, &songID)

	if err == sql.ErrNoRows {
		// 既にcaptured。再送されたウェブフックはno-opで成功扱いにする。
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark session captured: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO purchases (user_id, song_id, price_at_buy)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, song_id) DO NOTHING`,
		userID, songID, priceAtBuy,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// compile-time interface check
var _ PaymentSessionRepository = (*PostgresPaymentSessionRepo)(nil)

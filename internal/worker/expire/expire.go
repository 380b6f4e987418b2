// Package expire は決済セッションの期限切れジョブを提供する。
// TTL（デフォルト15分）を超過したpendingセッションを定期バッチでexpiredに
// 遷移させる。expiredは回復可能な状態であり、遅延して届いたウェブフックの
// successイベントによるキャプチャは引き続き許可される。
package expire

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Metrics は期限切れジョブが記録するメトリクスのインターフェース。
type Metrics interface {
	RecordSessionsExpired(count int)
}

// ExpireJob はTTLを超過したpending決済セッションの期限切れジョブ。
// 単一のUPDATE文で遷移させるため再実行しても安全。
type ExpireJob struct {
	db      Executor
	metrics Metrics
	logger  *slog.Logger
	TTL     time.Duration // pendingセッションの有効期間（デフォルト: 15分）
}

// NewExpireJob は新しいExpireJobを生成する。
// デフォルトのTTLは15分。
func NewExpireJob(db Executor, metrics Metrics, logger *slog.Logger) *ExpireJob {
	return &ExpireJob{
		db:      db,
		metrics: metrics,
		logger:  logger,
		TTL:     15 * time.Minute,
	}
}

// Run はTTLを超過したpendingセッションをexpiredに遷移させる。
// 対象はstatus = 'pending'のみで、authorized・capturedには触れない。
// 冪等: 対象がない場合でもエラーにならない。
func (j *ExpireJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int(j.TTL.Seconds()))

	query := `UPDATE payment_sessions SET status = 'expired' WHERE status = 'pending' AND created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("決済セッション期限切れジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("ttl", j.TTL.String()),
		)
		return fmt.Errorf("決済セッション期限切れ処理の実行に失敗: %w", err)
	}

	expiredCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("期限切れ件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れ件数の取得に失敗: %w", err)
	}

	j.metrics.RecordSessionsExpired(int(expiredCount))

	duration := time.Since(start)
	j.logger.Info("決済セッション期限切れジョブが完了しました",
		slog.Int64("expired_count", expiredCount),
		slog.String("ttl", j.TTL.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

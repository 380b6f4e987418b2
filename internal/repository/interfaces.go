// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/otoichi/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// UpsertByEmail はemailをキーにユーザーを作成または更新する。
	// 既存ユーザーの場合はname/avatar_urlを更新し、mezon_idは非空の値でのみ上書きする。
	// 返り値は永続化後の最新状態。
	UpsertByEmail(ctx context.Context, user *model.User) (*model.User, error)

	// Create はユーザーを直接作成する。emailが重複する場合はAPIError(EMAIL_EXISTS)を返す。
	Create(ctx context.Context, email, name string) (*model.User, error)

	// List は全ユーザーをID降順で返す。
	List(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByToken は指定トークンのセッションを取得する。期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	// DeleteByToken は指定トークンのセッションを削除する。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
}

// GenreRepository はジャンルデータの永続化インターフェース。
type GenreRepository interface {
	// List は全ジャンルを名前昇順で返す。
	List(ctx context.Context) ([]model.Genre, error)
}

// SongRepository は楽曲データの永続化インターフェース。
type SongRepository interface {
	// FindByID は指定IDの楽曲をジャンル付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Song, error)

	// Search はタイトル・説明文の部分一致検索で楽曲一覧と総件数を返す。
	// qが空の場合は全件を対象とする。作成日時降順。
	Search(ctx context.Context, q string, limit, offset int) ([]*model.Song, int, error)

	// Create は楽曲とジャンル関連を同一トランザクションで作成する。
	// song.IDとsong.CreatedAtを設定して返る。
	Create(ctx context.Context, song *model.Song, genreIDs []int64) error

	// IncrementListens は再生カウンタをインクリメントする。
	IncrementListens(ctx context.Context, id int64) error
}

// PaymentSessionRepository は決済セッションの永続化インターフェース。
// セッションは監査証跡のため削除されず、statusのみが遷移する。
type PaymentSessionRepository interface {
	// Create は決済セッションを作成する。
	Create(ctx context.Context, ps *model.PaymentSession) error

	// FindBySessionID は指定セッションIDの決済セッションを取得する。
	// 見つからない場合はnilを返す。
	FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentSession, error)

	// UpdateStatus はセッションのstatusを更新する。
	UpdateStatus(ctx context.Context, sessionID string, status model.PaymentStatus) error

	// Capture はセッションをcapturedに遷移させ、同一トランザクション内で
	// Purchaseレコードを作成する。既にcapturedの場合は書き込みを行わず
	// (false, nil)を返す（ウェブフック再送に対する冪等性）。
	// 同一セッションへの並行呼び出しはUPDATEの行ロックで直列化され、
	// 敗者側は勝者のコミットを観測してno-opになる。Purchase挿入は
	// UNIQUE(user_id, song_id)へのON CONFLICT DO NOTHINGで重複を無視する。
	Capture(ctx context.Context, sessionID string, priceAtBuy float64) (bool, error)
}

// PurchaseRepository は購入記録の永続化インターフェース。
type PurchaseRepository interface {
	// Exists は(userID, songID)の購入記録が存在するかを返す。
	Exists(ctx context.Context, userID, songID int64) (bool, error)

	// Create は購入記録を冪等に作成する。既に存在する場合は何もしない。
	Create(ctx context.Context, userID, songID int64, priceAtBuy float64) error

	// ListSongIDsByUser はユーザーが購入済みの楽曲ID集合を返す。
	ListSongIDsByUser(ctx context.Context, userID int64) (map[int64]bool, error)
}

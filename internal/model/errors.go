// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeSongNotFound        = "SONG_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeSessionNotFound     = "PAYMENT_SESSION_NOT_FOUND"
	ErrCodeAudioNotAvailable   = "AUDIO_NOT_AVAILABLE"
	ErrCodeAlreadyOwned        = "ALREADY_OWNED"
	ErrCodeEmailExists         = "EMAIL_EXISTS"
	ErrCodeAmountMismatch      = "AMOUNT_MISMATCH"
	ErrCodeMissingSessionID    = "MISSING_SESSION_ID"
	ErrCodeSignedURLFailed     = "SIGNED_URL_FAILED"
)

// NewInvalidRequestError は不正なリクエストエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// 認証済みだが対象リソースへのアクセス権がない場合に使用する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "フル音源の再生には楽曲の購入が必要です。",
	}
}

// NewSongNotFoundError は楽曲未検出エラーを生成する。
func NewSongNotFoundError(songID int64) *APIError {
	return &APIError{
		Code:     ErrCodeSongNotFound,
		Message:  fmt.Sprintf("指定された楽曲が見つかりません: %d", songID),
		Category: "catalog",
		Action:   "楽曲IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewPaymentSessionNotFoundError は決済セッション未検出エラーを生成する。
func NewPaymentSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された決済セッションが見つかりません: %s", sessionID),
		Category: "payment",
		Action:   "セッションIDを確認してください。",
	}
}

// NewAudioNotAvailableError は音源パス未設定エラーを生成する。
// kindには "preview" または "full" を指定する。
func NewAudioNotAvailableError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeAudioNotAvailable,
		Message:  fmt.Sprintf("この楽曲の%s音源は利用できません。", kindLabel(kind)),
		Category: "catalog",
		Action:   "別の楽曲をお試しください。",
	}
}

// NewAlreadyOwnedError は購入済み楽曲の再購入エラーを生成する。
func NewAlreadyOwnedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyOwned,
		Message:  "この楽曲は既に購入済みです。",
		Category: "payment",
		Action:   "マイライブラリからフル音源を再生できます。",
	}
}

// NewEmailExistsError はメールアドレス重複エラーを生成する。
func NewEmailExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailExists,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを使用してください。",
	}
}

// NewAmountMismatchError はウェブフック金額不一致エラーを生成する。
// 改ざんされた、または古いウェブフックペイロードを検出した場合に使用する。
func NewAmountMismatchError(got, want int64) *APIError {
	return &APIError{
		Code:     ErrCodeAmountMismatch,
		Message:  fmt.Sprintf("ウェブフックの金額がセッションの金額と一致しません: %d != %d", got, want),
		Category: "payment",
		Action:   "決済をやり直してください。",
	}
}

// NewMissingSessionIDError はウェブフックのセッションID欠落エラーを生成する。
func NewMissingSessionIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingSessionID,
		Message:  "ウェブフックのmetadataにsession_idが含まれていません。",
		Category: "payment",
		Action:   "ウェブフック送信側の設定を確認してください。",
	}
}

// NewSignedURLFailedError は署名付きURL発行失敗エラーを生成する。
// ストレージサービス側の失敗はリトライせずそのまま返す（クライアントが再リクエストできる）。
func NewSignedURLFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSignedURLFailed,
		Message:  "署名付きURLの発行に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func kindLabel(kind string) string {
	if kind == "full" {
		return "フル"
	}
	return "プレビュー"
}

// Package model はドメインモデルを定義する。
package model

import "time"

// PaymentStatus は決済セッションの状態を表す。
//
// 状態遷移:
//
//	pending → authorized → captured
//	pending → expired（スイープによる期限切れ。successウェブフックでのみcapturedに遷移できる）
//
// capturedは終端状態であり、以降のウェブフックは書き込みを行わない。
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusExpired    PaymentStatus = "expired"
)

// ウェブフックのイベント種別。
const (
	WebhookEventAuthorized = "authorized_amount"
	WebhookEventSuccess    = "success"
)

// PaymentSession は1楽曲の購入意図を追跡する決済セッションを表す。
// SessionIDは外部に公開されるopaqueなIDで、QRペイロードのnoteフィールドに
// 埋め込まれ、ウェブフックの突合に使用される。監査のため削除されない。
type PaymentSession struct {
	SessionID string
	UserID    int64
	SongID    int64
	Amount    int64 // VND整数。小数サブユニットは使用しない。
	Status    PaymentStatus
	Note      string
	CreatedAt time.Time
}

// Purchase はユーザーの楽曲購入記録を表す。
// (UserID, SongID)のペアは一意であり、この行の存在が「楽曲を所有している」ことの
// 唯一の根拠となる。PriceAtBuyはキャプチャ時に実際に支払われた額。
type Purchase struct {
	ID         int64
	UserID     int64
	SongID     int64
	PriceAtBuy float64
	CreatedAt  time.Time
}

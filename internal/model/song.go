// Package model はドメインモデルを定義する。
package model

import "time"

// Genre は楽曲のジャンルを表す。
type Genre struct {
	ID   int64
	Name string
}

// Song はマーケットプレイスに出品された楽曲を表す。
// PreviewPathとFullPathはオブジェクトストアのプライベートバケット内のパスで、
// 署名付きURL経由でのみアクセスできる。AvatarURLは公開バケットのジャケット画像URL。
type Song struct {
	ID          int64
	Title       string
	Description string
	Price       float64 // VND。請求時はmax(1, round(Price))の整数に丸める。
	PreviewPath string
	FullPath    string
	AvatarURL   string
	SellerID    int64
	Listens     int64
	Genres      []Genre
	CreatedAt   time.Time
}

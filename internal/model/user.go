// Package model はドメインモデルを定義する。
package model

import "time"

// ユーザーのロール。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User はサービス利用ユーザーを表す。
// OAuthログイン時にemailをキーとしてupsertされる。
type User struct {
	ID        int64
	Email     string
	Name      string
	AvatarURL string
	MezonID   string // Mezon IdPのsubject。Mezonログイン以外では空。
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin はユーザーが管理者ロールを持つかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session はユーザーのログインセッションを表す。
// Tokenは推測不能なopaqueトークンで、HTTP Only Cookie経由でやり取りされる。
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はSession Storeが管理するアカウントを表す。
// このシステムは参照するのみで、作成・変更はSession Store経由でのみ行う。
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	Metadata     IdentityMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdentityMetadata はidentities.metadata(JSONB)の内容を表す。
type IdentityMetadata struct {
	IsAdmin bool `json:"is_admin,omitempty"`
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time

	// Identity はGetSessionで結合して返される。Createでは使用しない。
	Identity *Identity
}

package model

import "time"

// Church はテナント（教会）を表す。slugで一意。
type Church struct {
	ID            string
	Name          string
	Slug          string
	ContactEmail  string
	NotionPageURL *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasViewer は埋め込みビューアのURLが設定されているかを返す。
func (c *Church) HasViewer() bool {
	return c != nil && c.NotionPageURL != nil && *c.NotionPageURL != ""
}

// Role はテナント内でのメンバーの権限を表す。
type Role string

const (
	// RoleAdmin はテナント管理者。
	RoleAdmin Role = "admin"
	// RoleEditor は説教の登録・編集が可能なメンバー。
	RoleEditor Role = "editor"
	// RoleViewer は閲覧のみ可能なメンバー。
	RoleViewer Role = "viewer"
)

// Valid はロールが定義済みの値かを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

// CanEdit は説教の作成・更新・削除が許可されるかを返す。
func (r Role) CanEdit() bool {
	return r == RoleAdmin || r == RoleEditor
}

// Membership はidentityとテナントの紐付け（church_users）を表す。
// このシステムが参照するのはidentityごとに最大1件。
type Membership struct {
	ID        string
	ChurchID  string
	UserID    string
	Role      Role
	CreatedAt time.Time

	// Church はchurchesテーブルとJOINして取得される非正規化参照。
	Church *Church
}

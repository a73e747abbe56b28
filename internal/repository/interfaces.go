// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/sermonhub/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しないことを表す。
var ErrNotFound = errors.New("record not found")

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate record")

// IdentityRepository はアカウント（identities）の永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByEmail は正規化済みメールアドレスでidentityを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)

	// Create はidentityを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UpdateMetadata はmetadataを置き換える。
	UpdateMetadata(ctx context.Context, id string, metadata model.IdentityMetadata) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChurchRepository はテナント（churches）の永続化インターフェース。
type ChurchRepository interface {
	// List は全教会を名前順で返す。
	List(ctx context.Context) ([]*model.Church, error)
	// FindByID は指定IDの教会を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Church, error)
	// FindBySlug はslugで教会を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Church, error)
	// Create は教会を作成する。slugが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, church *model.Church) error
	// Update は教会を更新する。存在しない場合はErrNotFound、slug重複はErrDuplicateを返す。
	Update(ctx context.Context, church *model.Church) error
	// Delete は教会を削除する。所属・説教・コンテンツはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// MembershipRepository はidentityとテナントの紐付け（church_users）の永続化インターフェース。
type MembershipRepository interface {
	// FindByUserID は指定identityの所属を教会とJOINして返す。
	// 一意性の検証は呼び出し側が行うため、最大2件まで返す。
	FindByUserID(ctx context.Context, userID string) ([]*model.Membership, error)

	// ReplaceForUser はidentityの既存所属を削除し、指定の所属を作成する。
	ReplaceForUser(ctx context.Context, membership *model.Membership) error
}

// SermonRepository は説教と派生コンテンツの永続化インターフェース。
// すべての操作は教会IDでスコープされる。
type SermonRepository interface {
	// ListByChurch は教会の説教をsermon_date降順で、コンテンツの状態付きで返す。
	ListByChurch(ctx context.Context, churchID string) ([]*model.Sermon, error)

	// FindByID は教会に属する説教をコンテンツ付きで返す。見つからない場合はnilを返す。
	FindByID(ctx context.Context, churchID, id string) (*model.Sermon, error)

	// CreateWithContent は説教とpendingのコンテンツ行を同一トランザクションで作成する。
	CreateWithContent(ctx context.Context, sermon *model.Sermon, content *model.SermonContent) error

	// Update は説教のメタデータを更新する。存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, sermon *model.Sermon) error

	// Delete は説教を削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, churchID, id string) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

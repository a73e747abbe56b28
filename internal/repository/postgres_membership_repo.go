package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sermonhub/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用した所属リポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// FindByUserID は指定identityの所属を教会とJOINして返す。
// 2件目が存在するかどうかだけ分かればよいためLIMIT 2で取得する。
func (r *PostgresMembershipRepo) FindByUserID(ctx context.Context, userID string) ([]*model.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cu.id, cu.church_id, cu.user_id, cu.role, cu.created_at,
		        c.id, c.name, c.slug, c.contact_email, c.notion_page_url, c.created_at, c.updated_at
		 FROM church_users cu
		 JOIN churches c ON c.id = cu.church_id
		 WHERE cu.user_id = $1
		 ORDER BY cu.created_at
		 LIMIT 2`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*model.Membership
	for rows.Next() {
		m := &model.Membership{Church: &model.Church{}}
		var notionURL sql.NullString
		if err := rows.Scan(&m.ID, &m.ChurchID, &m.UserID, &m.Role, &m.CreatedAt,
			&m.Church.ID, &m.Church.Name, &m.Church.Slug, &m.Church.ContactEmail,
			&notionURL, &m.Church.CreatedAt, &m.Church.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if notionURL.Valid {
			m.Church.NotionPageURL = &notionURL.String
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return memberships, nil
}

// ReplaceForUser はidentityの既存所属を削除し、指定の所属を同一トランザクションで作成する。
func (r *PostgresMembershipRepo) ReplaceForUser(ctx context.Context, membership *model.Membership) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM church_users WHERE user_id = $1`, membership.UserID,
	); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO church_users (id, church_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		membership.ID, membership.ChurchID, membership.UserID, membership.Role, membership.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)

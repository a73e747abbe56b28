package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sermonhub/internal/model"
)

// PostgresChurchRepo はPostgreSQLを使用した教会リポジトリ。
type PostgresChurchRepo struct {
	db *sql.DB
}

// NewPostgresChurchRepo はPostgresChurchRepoを生成する。
func NewPostgresChurchRepo(db *sql.DB) *PostgresChurchRepo {
	return &PostgresChurchRepo{db: db}
}

const churchColumns = `id, name, slug, contact_email, notion_page_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChurch(row rowScanner) (*model.Church, error) {
	church := &model.Church{}
	var notionURL sql.NullString
	if err := row.Scan(&church.ID, &church.Name, &church.Slug, &church.ContactEmail,
		&notionURL, &church.CreatedAt, &church.UpdatedAt); err != nil {
		return nil, err
	}
	if notionURL.Valid {
		church.NotionPageURL = &notionURL.String
	}
	return church, nil
}

// List は全教会を名前順で返す。
func (r *PostgresChurchRepo) List(ctx context.Context) ([]*model.Church, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+churchColumns+` FROM churches ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list churches: %w", err)
	}
	defer rows.Close()

	churches := make([]*model.Church, 0)
	for rows.Next() {
		church, err := scanChurch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan church: %w", err)
		}
		churches = append(churches, church)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate churches: %w", err)
	}
	return churches, nil
}

// FindByID は指定IDの教会を取得する。見つからない場合はnilを返す。
func (r *PostgresChurchRepo) FindByID(ctx context.Context, id string) (*model.Church, error) {
	church, err := scanChurch(r.db.QueryRowContext(ctx,
		`SELECT `+churchColumns+` FROM churches WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find church by ID: %w", err)
	}
	return church, nil
}

// FindBySlug はslugで教会を取得する。見つからない場合はnilを返す。
func (r *PostgresChurchRepo) FindBySlug(ctx context.Context, slug string) (*model.Church, error) {
	church, err := scanChurch(r.db.QueryRowContext(ctx,
		`SELECT `+churchColumns+` FROM churches WHERE slug = $1`, slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find church by slug: %w", err)
	}
	return church, nil
}

// Create は教会を作成する。
func (r *PostgresChurchRepo) Create(ctx context.Context, church *model.Church) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO churches (id, name, slug, contact_email, notion_page_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		church.ID, church.Name, church.Slug, church.ContactEmail, church.NotionPageURL,
		church.CreatedAt, church.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create church: %w", err)
	}
	return nil
}

// Update は教会を更新する。
func (r *PostgresChurchRepo) Update(ctx context.Context, church *model.Church) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE churches
		 SET name = $2, slug = $3, contact_email = $4, notion_page_url = $5, updated_at = $6
		 WHERE id = $1`,
		church.ID, church.Name, church.Slug, church.ContactEmail, church.NotionPageURL, church.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update church: %w", err)
	}
	return expectOneRow(result)
}

// Delete は教会を削除する。
func (r *PostgresChurchRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM churches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete church: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ ChurchRepository = (*PostgresChurchRepo)(nil)

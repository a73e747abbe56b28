package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/sermonhub/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, email, password_hash, metadata, created_at, updated_at`

func scanIdentity(row *sql.Row) (*model.Identity, error) {
	identity := &model.Identity{}
	var metadata []byte
	if err := row.Scan(&identity.ID, &identity.Email, &identity.PasswordHash, &metadata, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &identity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode identity metadata: %w", err)
		}
	}
	return identity, nil
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return identity, nil
}

// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email = $1`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by email: %w", err)
	}
	return identity, nil
}

// Create はidentityを作成する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	metadata, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode identity metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		identity.ID, identity.Email, identity.PasswordHash, metadata, identity.CreatedAt, identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// UpdatePassword はパスワードハッシュを更新する。
func (r *PostgresIdentityRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateOne(ctx,
		`UPDATE identities SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
}

// UpdateMetadata はmetadataを置き換える。
func (r *PostgresIdentityRepo) UpdateMetadata(ctx context.Context, id string, metadata model.IdentityMetadata) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode identity metadata: %w", err)
	}
	return r.updateOne(ctx,
		`UPDATE identities SET metadata = $2, updated_at = now() WHERE id = $1`,
		id, raw,
	)
}

func (r *PostgresIdentityRepo) updateOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
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
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sermonhub/internal/model"
)

// PostgresSermonRepo はPostgreSQLを使用した説教リポジトリ。
type PostgresSermonRepo struct {
	db *sql.DB
}

// NewPostgresSermonRepo はPostgresSermonRepoを生成する。
func NewPostgresSermonRepo(db *sql.DB) *PostgresSermonRepo {
	return &PostgresSermonRepo{db: db}
}

const sermonWithContentSelect = `
	SELECT s.id, s.church_id, s.title, s.speaker_name, to_char(s.sermon_date, 'YYYY-MM-DD'),
	       s.youtube_url, s.series_name, s.created_at, s.updated_at,
	       sc.id, sc.full_blog_post, sc.meta_tags, sc.video_schema_json, sc.social_captions,
	       sc.discussion_questions, sc.processing_status, sc.created_at, sc.updated_at
	FROM sermons s
	LEFT JOIN sermon_content sc ON sc.sermon_id = s.id`

func scanSermonWithContent(row rowScanner) (*model.Sermon, error) {
	s := &model.Sermon{}
	var (
		series                                  sql.NullString
		contentID, status                       sql.NullString
		blogPost, metaTags, captions, questions sql.NullString
		videoSchema                             []byte
		contentCreatedAt, contentUpdatedAt      sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.ChurchID, &s.Title, &s.SpeakerName, &s.SermonDate,
		&s.YouTubeURL, &series, &s.CreatedAt, &s.UpdatedAt,
		&contentID, &blogPost, &metaTags, &videoSchema, &captions,
		&questions, &status, &contentCreatedAt, &contentUpdatedAt); err != nil {
		return nil, err
	}
	s.SeriesName = nullableString(series)
	if contentID.Valid {
		s.Content = &model.SermonContent{
			ID:                  contentID.String,
			SermonID:            s.ID,
			FullBlogPost:        nullableString(blogPost),
			MetaTags:            nullableString(metaTags),
			VideoSchemaJSON:     videoSchema,
			SocialCaptions:      nullableString(captions),
			DiscussionQuestions: nullableString(questions),
			ProcessingStatus:    model.ProcessingStatus(status.String),
			CreatedAt:           contentCreatedAt.Time,
			UpdatedAt:           contentUpdatedAt.Time,
		}
	}
	return s, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// ListByChurch は教会の説教をsermon_date降順で返す。
func (r *PostgresSermonRepo) ListByChurch(ctx context.Context, churchID string) ([]*model.Sermon, error) {
	rows, err := r.db.QueryContext(ctx,
		sermonWithContentSelect+`
		 WHERE s.church_id = $1
		 ORDER BY s.sermon_date DESC, s.created_at DESC`,
		churchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sermons: %w", err)
	}
	defer rows.Close()

	sermons := make([]*model.Sermon, 0)
	for rows.Next() {
		s, err := scanSermonWithContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sermon: %w", err)
		}
		sermons = append(sermons, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sermons: %w", err)
	}
	return sermons, nil
}

// FindByID は教会に属する説教をコンテンツ付きで返す。見つからない場合はnilを返す。
func (r *PostgresSermonRepo) FindByID(ctx context.Context, churchID, id string) (*model.Sermon, error) {
	s, err := scanSermonWithContent(r.db.QueryRowContext(ctx,
		sermonWithContentSelect+`
		 WHERE s.church_id = $1 AND s.id = $2`,
		churchID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sermon: %w", err)
	}
	return s, nil
}

// CreateWithContent は説教とコンテンツ行を同一トランザクションで作成する。
// どちらかの挿入に失敗した場合はいずれも残らない。
func (r *PostgresSermonRepo) CreateWithContent(ctx context.Context, sermon *model.Sermon, content *model.SermonContent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sermons (id, church_id, title, speaker_name, sermon_date, youtube_url, series_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sermon.ID, sermon.ChurchID, sermon.Title, sermon.SpeakerName, sermon.SermonDate,
		sermon.YouTubeURL, sermon.SeriesName, sermon.CreatedAt, sermon.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert sermon: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sermon_content (id, sermon_id, processing_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		content.ID, sermon.ID, content.ProcessingStatus, content.CreatedAt, content.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert sermon content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は説教のメタデータを更新する。
func (r *PostgresSermonRepo) Update(ctx context.Context, sermon *model.Sermon) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sermons
		 SET title = $3, speaker_name = $4, sermon_date = $5, youtube_url = $6, series_name = $7, updated_at = $8
		 WHERE church_id = $1 AND id = $2`,
		sermon.ChurchID, sermon.ID, sermon.Title, sermon.SpeakerName, sermon.SermonDate,
		sermon.YouTubeURL, sermon.SeriesName, sermon.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update sermon: %w", err)
	}
	return expectOneRow(result)
}

// Delete は説教を削除する。コンテンツ行はCASCADE削除される。
func (r *PostgresSermonRepo) Delete(ctx context.Context, churchID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sermons WHERE church_id = $1 AND id = $2`, churchID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete sermon: %w", err)
	}
	return expectOneRow(result)
}

// compile-time interface check
var _ SermonRepository = (*PostgresSermonRepo)(nil)

// Package admin は管理者向けの教会（テナント）管理と所属の付与を提供する。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sermonhub/internal/auth"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/repository"
	"github.com/hitoshi/sermonhub/internal/security"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// PasswordResetter はパスワードリセットメールの送信を委譲するインターフェース。
type PasswordResetter interface {
	ResetPasswordForEmail(ctx context.Context, email string) error
}

// ChurchInput は教会の登録内容。
type ChurchInput struct {
	Name          string
	Slug          string
	ContactEmail  string
	NotionPageURL *string
}

// ChurchUpdate は教会の部分更新。nilのフィールドは変更しない。
// NotionPageURLに空文字を指定すると未設定に戻す。
type ChurchUpdate struct {
	Name          *string
	Slug          *string
	ContactEmail  *string
	NotionPageURL *string
}

// Service は教会CRUDとパスワードリセット送信を提供する。
// すべての変更操作は名前順の最新一覧を返す。
type Service struct {
	churches repository.ChurchRepository
	resetter PasswordResetter
	now      func() time.Time
}

// NewService はServiceを生成する。churchesがnilの場合は設定欠如を返す。
func NewService(churches repository.ChurchRepository, resetter PasswordResetter) *Service {
	return &Service{churches: churches, resetter: resetter, now: time.Now}
}

// List は全教会を名前順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Church, error) {
	if s.churches == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	churches, err := s.churches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("教会一覧の取得に失敗しました: %w", err)
	}
	return churches, nil
}

// Get は指定IDの教会を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Church, error) {
	if s.churches == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	church, err := s.churches.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("教会の取得に失敗しました: %w", err)
	}
	if church == nil {
		return nil, model.NewChurchNotFoundError(id)
	}
	return church, nil
}

// Create は教会を登録する。slugが重複する場合はConflictを返す。
func (s *Service) Create(ctx context.Context, input ChurchInput) ([]*model.Church, error) {
	if s.churches == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	input = normalizeInput(input)
	if err := ValidateChurch(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	church := &model.Church{
		ID:            uuid.New().String(),
		Name:          input.Name,
		Slug:          input.Slug,
		ContactEmail:  input.ContactEmail,
		NotionPageURL: input.NotionPageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.churches.Create(ctx, church); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateSlugError(input.Slug)
		}
		return nil, fmt.Errorf("教会の登録に失敗しました: %w", err)
	}

	slog.Info("church created", slog.String("church_id", church.ID), slog.String("slug", church.Slug))
	return s.List(ctx)
}

// Update は指定フィールドのみを更新する。
func (s *Service) Update(ctx context.Context, id string, update ChurchUpdate) ([]*model.Church, error) {
	church, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	input := ChurchInput{
		Name:          church.Name,
		Slug:          church.Slug,
		ContactEmail:  church.ContactEmail,
		NotionPageURL: church.NotionPageURL,
	}
	if update.Name != nil {
		input.Name = *update.Name
	}
	if update.Slug != nil {
		input.Slug = *update.Slug
	}
	if update.ContactEmail != nil {
		input.ContactEmail = *update.ContactEmail
	}
	if update.NotionPageURL != nil {
		input.NotionPageURL = update.NotionPageURL
	}
	input = normalizeInput(input)
	if err := ValidateChurch(input); err != nil {
		return nil, err
	}

	church.Name = input.Name
	church.Slug = input.Slug
	church.ContactEmail = input.ContactEmail
	church.NotionPageURL = input.NotionPageURL
	church.UpdatedAt = s.now().UTC()

	if err := s.churches.Update(ctx, church); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewDuplicateSlugError(input.Slug)
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewChurchNotFoundError(id)
		}
		return nil, fmt.Errorf("教会の更新に失敗しました: %w", err)
	}
	return s.List(ctx)
}

// Delete は教会を削除する。説教や所属の有無は確認せず、ディレクトリ側のCASCADEに委ねる。
func (s *Service) Delete(ctx context.Context, id string) ([]*model.Church, error) {
	if s.churches == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	if err := s.churches.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewChurchNotFoundError(id)
		}
		return nil, fmt.Errorf("教会の削除に失敗しました: %w", err)
	}

	slog.Info("church deleted", slog.String("church_id", id))
	return s.List(ctx)
}

// SendPasswordReset は教会の連絡先メールアドレス宛てにリセットメールを送る。
func (s *Service) SendPasswordReset(ctx context.Context, churchID string) error {
	if s.resetter == nil {
		return model.NewConfigurationMissingError("DATABASE_URL")
	}
	church, err := s.Get(ctx, churchID)
	if err != nil {
		return err
	}
	if err := s.resetter.ResetPasswordForEmail(ctx, church.ContactEmail); err != nil {
		slog.Error("failed to send password reset",
			slog.String("church_id", churchID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// ValidateChurch は教会の必須項目と形式を検証する。
func ValidateChurch(in ChurchInput) error {
	if in.Name == "" {
		return model.NewValidationError("name", "Name is required")
	}
	if in.Slug == "" {
		return model.NewValidationError("slug", "Slug is required")
	}
	if !slugPattern.MatchString(in.Slug) {
		return model.NewValidationError("slug", "Slug may contain only lowercase letters, digits and hyphens")
	}
	if in.ContactEmail == "" {
		return model.NewValidationError("contact_email", "Contact email is required")
	}
	if err := auth.ValidateEmail(in.ContactEmail); err != nil {
		return model.NewValidationError("contact_email", "Contact email must be a valid email address")
	}
	if in.NotionPageURL != nil && !security.IsHTTPURL(*in.NotionPageURL) {
		return model.NewValidationError("notion_page_url", "Notion page URL must be an absolute http or https URL")
	}
	return nil
}

func normalizeInput(in ChurchInput) ChurchInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if in.NotionPageURL != nil {
		v := strings.TrimSpace(*in.NotionPageURL)
		if v == "" {
			in.NotionPageURL = nil
		} else {
			in.NotionPageURL = &v
		}
	}
	return in
}

// Package sermon は教会ごとの説教の一覧・登録・更新・削除を提供する。
package sermon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/repository"
	"github.com/hitoshi/sermonhub/internal/security"
)

// recentLimit はダッシュボードに表示する最近の説教の件数。
const recentLimit = 5

// Stats はダッシュボード用の集計値。
type Stats struct {
	Total       int             `json:"total"`
	ThisMonth   int             `json:"this_month"`
	Processed   int             `json:"processed"`
	SuccessRate int             `json:"success_rate"` // 百分率（四捨五入）
	Recent      []*model.Sermon `json:"-"`
}

// Service は説教管理のサービス層。
// すべての操作は教会IDでスコープされ、変更後は最新の一覧を返す。
type Service struct {
	repo repository.SermonRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// repoがnilの場合、すべての操作は設定欠如エラーを返す。
func NewService(repo repository.SermonRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List は教会の説教をsermon_date降順で返す。
func (s *Service) List(ctx context.Context, churchID string) ([]*model.Sermon, error) {
	if s.repo == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	sermons, err := s.repo.ListByChurch(ctx, churchID)
	if err != nil {
		return nil, fmt.Errorf("説教一覧の取得に失敗しました: %w", err)
	}
	return sermons, nil
}

// Create は説教とpendingのコンテンツ行を1トランザクションで作成し、最新の一覧を返す。
func (s *Service) Create(ctx context.Context, churchID string, input model.SermonInput) ([]*model.Sermon, error) {
	if s.repo == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	input = normalizeInput(input)
	if err := ValidateInput(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sermon := &model.Sermon{
		ID:          uuid.New().String(),
		ChurchID:    churchID,
		Title:       input.Title,
		SpeakerName: input.SpeakerName,
		SermonDate:  input.SermonDate,
		YouTubeURL:  input.YouTubeURL,
		SeriesName:  input.SeriesName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	content := &model.SermonContent{
		ID:               uuid.New().String(),
		SermonID:         sermon.ID,
		ProcessingStatus: model.ProcessingStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.CreateWithContent(ctx, sermon, content); err != nil {
		return nil, fmt.Errorf("説教の登録に失敗しました: %w", err)
	}
	return s.List(ctx, churchID)
}

// Update は指定フィールドのみを更新し、最新の一覧を返す。
// 他の教会の説教IDはNotFoundとして扱う。
func (s *Service) Update(ctx context.Context, churchID, id string, update model.SermonUpdate) ([]*model.Sermon, error) {
	if s.repo == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}

	current, err := s.repo.FindByID(ctx, churchID, id)
	if err != nil {
		return nil, fmt.Errorf("説教の取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewSermonNotFoundError(id)
	}

	merged := applyUpdate(current, update)
	if err := ValidateInput(merged); err != nil {
		return nil, err
	}

	current.Title = merged.Title
	current.SpeakerName = merged.SpeakerName
	current.SermonDate = merged.SermonDate
	current.YouTubeURL = merged.YouTubeURL
	current.SeriesName = merged.SeriesName
	current.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, current); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewSermonNotFoundError(id)
		}
		return nil, fmt.Errorf("説教の更新に失敗しました: %w", err)
	}
	return s.List(ctx, churchID)
}

// Delete は説教を削除し、最新の一覧を返す。
func (s *Service) Delete(ctx context.Context, churchID, id string) ([]*model.Sermon, error) {
	if s.repo == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	if err := s.repo.Delete(ctx, churchID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewSermonNotFoundError(id)
		}
		return nil, fmt.Errorf("説教の削除に失敗しました: %w", err)
	}
	return s.List(ctx, churchID)
}

// Stats はダッシュボード用の集計を返す。
// 今月の件数はsermon_dateの年月が現在（UTC）と一致するものを数える。
func (s *Service) Stats(ctx context.Context, churchID string) (*Stats, error) {
	sermons, err := s.List(ctx, churchID)
	if err != nil {
		return nil, err
	}

	month := s.now().UTC().Format("2006-01")
	st := &Stats{Total: len(sermons)}
	for _, sm := range sermons {
		if strings.HasPrefix(sm.SermonDate, month) {
			st.ThisMonth++
		}
		if sm.Content != nil && sm.Content.ProcessingStatus == model.ProcessingStatusCompleted {
			st.Processed++
		}
	}
	if st.Total > 0 {
		st.SuccessRate = (st.Processed*100 + st.Total/2) / st.Total
	}

	n := min(len(sermons), recentLimit)
	st.Recent = sermons[:n]
	return st, nil
}

// ValidateInput は登録フォームの必須項目と形式を検証する。
func ValidateInput(in model.SermonInput) error {
	if in.Title == "" {
		return model.NewValidationError("title", "Title is required")
	}
	if in.SpeakerName == "" {
		return model.NewValidationError("speaker_name", "Speaker name is required")
	}
	if in.SermonDate == "" {
		return model.NewValidationError("sermon_date", "Sermon date is required")
	}
	if _, err := time.Parse(model.SermonDateLayout, in.SermonDate); err != nil {
		return model.NewValidationError("sermon_date", "Sermon date must be in YYYY-MM-DD format")
	}
	if in.YouTubeURL == "" {
		return model.NewValidationError("youtube_url", "YouTube URL is required")
	}
	if !security.IsHTTPURL(in.YouTubeURL) {
		return model.NewValidationError("youtube_url", "Must be a valid URL")
	}
	return nil
}

func normalizeInput(in model.SermonInput) model.SermonInput {
	in.Title = strings.TrimSpace(in.Title)
	in.SpeakerName = strings.TrimSpace(in.SpeakerName)
	in.SermonDate = strings.TrimSpace(in.SermonDate)
	in.YouTubeURL = strings.TrimSpace(in.YouTubeURL)
	in.SeriesName = normalizeSeries(in.SeriesName)
	return in
}

// normalizeSeries は空白のみのシリーズ名をnil（未設定）にする。
func normalizeSeries(series *string) *string {
	if series == nil {
		return nil
	}
	v := strings.TrimSpace(*series)
	if v == "" {
		return nil
	}
	return &v
}

func applyUpdate(current *model.Sermon, u model.SermonUpdate) model.SermonInput {
	in := model.SermonInput{
		Title:       current.Title,
		SpeakerName: current.SpeakerName,
		SermonDate:  current.SermonDate,
		YouTubeURL:  current.YouTubeURL,
		SeriesName:  current.SeriesName,
	}
	if u.Title != nil {
		in.Title = *u.Title
	}
	if u.SpeakerName != nil {
		in.SpeakerName = *u.SpeakerName
	}
	if u.SermonDate != nil {
		in.SermonDate = *u.SermonDate
	}
	if u.YouTubeURL != nil {
		in.YouTubeURL = *u.YouTubeURL
	}
	if u.SeriesName != nil {
		in.SeriesName = u.SeriesName
	}
	return normalizeInput(in)
}
